package models

import (
	"fmt"
	"os"
	"strings"
)

// ResolvedAuth holds the resolved credential.
type ResolvedAuth struct {
	Value string
}

// ResolveAuth resolves the credential for a provider.
// Resolution order: key from the request (a "${VAR}" value reads the env var)
// then the driver's default env var.
func ResolveAuth(p Provider) (ResolvedAuth, error) {
	key := strings.TrimSpace(p.APIKey)
	if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		key = os.Getenv(key[2 : len(key)-1])
	}
	if key != "" {
		return ResolvedAuth{Value: key}, nil
	}

	d, ok := drivers[strings.ToLower(p.Driver)]
	if !ok || d.keyEnv == "" {
		return ResolvedAuth{}, fmt.Errorf("unknown driver %q: cannot resolve auth", p.Driver)
	}
	if v := os.Getenv(d.keyEnv); v != "" {
		return ResolvedAuth{Value: v}, nil
	}
	return ResolvedAuth{}, fmt.Errorf("%s not set", d.keyEnv)
}
