// Package workspace allocates and reads the per-session working directories.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNotFound is returned for missing files and for paths that resolve
	// outside the workspace root.
	ErrNotFound = errors.New("not found")
	// ErrIO marks filesystem failures while creating, reading or writing.
	ErrIO = errors.New("workspace io")
	// ErrBadPattern is returned when a listing filter is not a valid glob.
	ErrBadPattern = errors.New("invalid pattern")
)

// File describes a regular file inside a workspace. It is computed on demand
// and never stored.
type File struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"` // slash-separated, relative to the workspace root
	Size     int64     `json:"size"`
	Modified float64   `json:"modified"` // unix seconds
	Type     string    `json:"type"`
	ModTime  time.Time `json:"-"`
}

// Manager owns the directory under which every session workspace lives.
type Manager struct {
	root string
}

// NewManager creates a Manager rooted at root. The directory is created lazily.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the directory holding all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// PathFor returns the workspace directory of a session without creating it.
func (m *Manager) PathFor(sessionID string) string {
	return filepath.Join(m.root, sessionID)
}

// Create allocates the exclusive directory for a session. It is idempotent.
func (m *Manager) Create(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("%w: invalid session id %q", ErrIO, sessionID)
	}
	dir := m.PathFor(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create workspace: %w", ErrIO, err)
	}
	return dir, nil
}

// Remove deletes a workspace and everything in it.
func (m *Manager) Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove workspace: %w", ErrIO, err)
	}
	return nil
}

// List recursively enumerates the regular files under dir, sorted by path.
// A missing dir yields an empty list. A non-empty pattern keeps only files
// whose relative path matches it (doublestar syntax, e.g. "**/*.py").
func (m *Manager) List(dir, pattern string) ([]File, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}

	files := []File{}
	if dir == "" {
		return files, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return files, nil
		}
		return nil, fmt.Errorf("%w: stat workspace: %w", ErrIO, err)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if pattern != "" {
			if ok, _ := doublestar.Match(pattern, rel); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{
			Name:     d.Name(),
			Path:     rel,
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / 1e9,
			Type:     "file",
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk workspace: %w", ErrIO, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the content of a regular file inside dir. Paths that escape
// dir, lexically or through a symlink, are reported as ErrNotFound.
func (m *Manager) Read(dir, relative string) ([]byte, error) {
	full, err := Resolve(dir, relative)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return nil, fmt.Errorf("%w: stat file: %w", ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, relative)
	}
	if err := ensureInside(dir, full); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %w", ErrIO, err)
	}
	return data, nil
}

// Write stores data at relative inside dir, creating parent directories.
func (m *Manager) Write(dir, relative string, data []byte) (string, error) {
	full, err := Resolve(dir, relative)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("%w: create parent dirs: %w", ErrIO, err)
	}
	if err := ensureInside(dir, filepath.Dir(full)); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write file: %w", ErrIO, err)
	}
	return full, nil
}

// Resolve joins relative onto dir and rejects anything that lexically lands
// outside dir.
func Resolve(dir, relative string) (string, error) {
	if dir == "" || relative == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relative)
	}
	if filepath.IsAbs(relative) || strings.HasPrefix(relative, "/") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relative)
	}
	full := filepath.Join(dir, filepath.FromSlash(relative))
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relative)
	}
	return full, nil
}

// ensureInside re-checks containment after symlink resolution.
func ensureInside(dir, full string) error {
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	realFull, err := filepath.EvalSymlinks(full)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	rel, err := filepath.Rel(realDir, realFull)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	return nil
}

// IsBinary reports whether data looks binary (a NUL byte in the first 512 bytes).
func IsBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}
