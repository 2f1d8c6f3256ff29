package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aman-CERP/sessionrecall/internal/errors"
)

// Catalog is the directory of session files. It is the source of truth the
// index is rebuilt from.
type Catalog struct {
	dir    string
	logger *slog.Logger
}

// NewCatalog creates a catalog over dir, creating the directory if needed.
func NewCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	if dir == "" {
		return nil, errors.ConfigError("sessions directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to create sessions directory", err).
			WithDetail("path", dir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{dir: dir, logger: logger}, nil
}

// Dir returns the sessions directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Path returns the file path for a session ID.
func (c *Catalog) Path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, id+Extension), nil
}

// Exists reports whether a session file exists for id.
func (c *Catalog) Exists(id string) bool {
	path, err := c.Path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Get parses the session with the given ID.
func (c *Catalog) Get(id string) (*Session, error) {
	path, err := c.Path(id)
	if err != nil {
		return nil, err
	}
	return Parse(path)
}

// List returns the sorted session file paths in the directory.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to read sessions directory", err).
			WithDetail("path", c.dir)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsSessionFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(c.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load parses every session file. Files that fail to parse are logged and
// skipped; their count is returned alongside the sessions.
func (c *Catalog) Load(ctx context.Context) ([]*Session, int, error) {
	paths, err := c.List()
	if err != nil {
		return nil, 0, err
	}

	sessions := make([]*Session, 0, len(paths))
	skipped := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}
		sess, err := Parse(path)
		if err != nil {
			skipped++
			c.logger.Warn("session_skipped",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, skipped, nil
}

// IsSessionFile reports whether name looks like a session file.
func IsSessionFile(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), Extension) && !strings.HasPrefix(base, ".")
}
