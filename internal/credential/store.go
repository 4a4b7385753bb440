// Package credential keeps the bilibili cookie header value on disk.
package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
)

const (
	dirPerm  = 0o755
	filePerm = 0o600

	appDir     = "bilidown"
	cookieFile = "cookie.env"
)

// Store reads and writes the cookie file.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore returns a store at ~/.config/bilidown/cookie.env.
func DefaultStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	return NewStore(filepath.Join(dir, cookieFile)), nil
}

// ConfigDir resolves ~/.config/bilidown.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", &media.ConfigurationError{Reason: "cannot resolve user home directory", Err: err}
	}

	return filepath.Join(home, ".config", appDir), nil
}

// Path returns the location of the cookie file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the trimmed cookie. A missing or unreadable file is not fatal:
// it is logged and an empty cookie is returned together with media.ErrCredentialUnavailable.
func (s *Store) Load(ctx context.Context) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	b, err := os.ReadFile(s.path)
	if err != nil {
		logger.Warn("cookie file missing or unreadable, continuing without cookie", "path", s.path, "err", err)

		return "", fmt.Errorf("%w: %w", media.ErrCredentialUnavailable, err)
	}

	return strings.TrimSpace(string(b)), nil
}

// Save reads one line from r and overwrites the cookie file with it, trimmed.
func (s *Store) Save(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read cookie: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(strings.TrimSpace(line)), filePerm); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	return nil
}
