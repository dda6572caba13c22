package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dohr-michael/agentweb/internal/models"
)

// Validation is the outcome of a configuration check.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Validator is implemented by engines that can check a provider
// configuration offline. An error wrapping ErrUnavailable means the engine
// cannot serve the provider at all.
type Validator interface {
	ValidateConfig(ctx context.Context, p models.Provider) error
}

// minAPIKeyLength is the basic check applied when no engine is configured.
const minAPIKeyLength = 10

// Validate checks a provider configuration without contacting the provider.
// With an engine it builds the chat model the engine would use; without one
// it only checks that the key looks plausible. It never fails: problems are
// reported as an invalid Validation.
func Validate(ctx context.Context, eng Engine, p models.Provider) (v Validation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("config validation panicked", "provider", p.Driver, "panic", r)
			v = Validation{Valid: false, Message: fmt.Sprintf("Validation failed: %v", r)}
		}
	}()

	validator, ok := eng.(Validator)
	if !ok {
		return basicValidation(p)
	}
	err := validator.ValidateConfig(ctx, p)
	switch {
	case errors.Is(err, ErrUnavailable):
		return basicValidation(p)
	case err != nil:
		return Validation{Valid: false, Message: fmt.Sprintf("Validation failed: %v", err)}
	}
	return Validation{Valid: true, Message: fmt.Sprintf("Configuration is valid for %s %s", p.Driver, p.Model)}
}

func basicValidation(p models.Provider) Validation {
	if len(strings.TrimSpace(p.APIKey)) > minAPIKeyLength {
		return Validation{Valid: true, Message: "Configuration appears valid (basic validation)"}
	}
	return Validation{Valid: false, Message: "API key appears too short"}
}
