package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/config"
	"github.com/Aman-CERP/sessionrecall/internal/embed"
	"github.com/Aman-CERP/sessionrecall/internal/session"
)

// embedderTimeout bounds the embedder availability probe.
const embedderTimeout = 10 * time.Second

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	cfg     *config.Config
	verbose bool

	// newEmbedder is replaced in tests.
	newEmbedder func(embed.Options) (embed.Embedder, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithEmbedderFactory overrides how the configured embedder is built.
func WithEmbedderFactory(f func(embed.Options) (embed.Embedder, error)) Option {
	return func(c *Checker) {
		c.newEmbedder = f
	}
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:         cfg,
		newEmbedder: embed.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in display order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	dataDir := c.cfg.DataDir()
	return []CheckResult{
		c.CheckConfig(),
		c.CheckSessionsDir(),
		c.CheckWritePermissions(dataDir),
		c.CheckDiskSpace(dataDir),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
	}
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns ready, ready_with_warnings or failed.
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a plain report of results to w.
func (c *Checker) PrintResults(w io.Writer, results []CheckResult) {
	_, _ = fmt.Fprintln(w, "recall system check")
	_, _ = fmt.Fprintln(w)

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
}

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckSessionsDir checks that the sessions directory can be read and
// counts the session files in it. A missing directory is a warning: it is
// created on first use.
func (c *Checker) CheckSessionsDir() CheckResult {
	dir := c.cfg.Paths.SessionsDir
	result := CheckResult{Name: "sessions_dir", Required: true, Details: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusWarn
			result.Message = "directory does not exist yet"
			return result
		}
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read directory: %v", err)
		return result
	}

	var files, unreadable int
	for _, e := range entries {
		if e.IsDir() || !session.IsSessionFile(e.Name()) {
			continue
		}
		files++
		if _, err := session.Parse(filepath.Join(dir, e.Name())); err != nil {
			unreadable++
		}
	}

	switch {
	case files == 0:
		result.Status = StatusWarn
		result.Message = "no session files"
	case unreadable > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d session files, %d unreadable", files, unreadable)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d session files", files)
	}
	return result
}

// CheckWritePermissions checks that the index directory, or the nearest
// existing parent, accepts new files.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  dir,
	}

	target := existingParent(dir)
	f, err := os.CreateTemp(target, ".recall-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder builds the configured embedder and probes it. Failures are
// warnings: search falls back to keywords and recency.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder"}

	opts, err := c.cfg.EmbedOptions()
	if err != nil {
		result.Status = StatusWarn
		result.Message = err.Error()
		return result
	}
	if opts.Provider == embed.ProviderNone {
		result.Status = StatusWarn
		result.Message = "disabled, semantic search is off"
		return result
	}

	e, err := c.newEmbedder(opts)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s: %v", opts.Provider, err)
		return result
	}
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithTimeout(ctx, embedderTimeout)
	defer cancel()
	if !e.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s (%s) is not reachable", opts.Provider, e.ModelName())
		result.Details = opts.Host
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", opts.Provider, e.ModelName())
	return result
}

// existingParent returns dir, or its closest ancestor that exists.
func existingParent(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
