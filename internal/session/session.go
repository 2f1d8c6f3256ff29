// Package session models captured work sessions: markdown notes written at
// the end of a working session, parsed into weighted documents for the
// ranking engine.
package session

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

const (
	// DefaultStatus is used when a session file carries no status line.
	DefaultStatus = "captured"

	maxIDLength = 128

	// Limits for the embedding text.
	embeddingFileLimit  = 10
	embeddingIssueLimit = 5
)

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-][a-zA-Z0-9._-]*$`)

// Session is one parsed session file.
type Session struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	Timestamp     time.Time `json:"timestamp"`
	Captured      string    `json:"captured,omitempty"`
	Status        string    `json:"status"`
	Topics        []string  `json:"topics"`
	FilesModified []string  `json:"files_modified"`
	Issues        []string  `json:"issues"`
	Summary       string    `json:"summary"`
	Notes         string    `json:"notes,omitempty"`
	Decisions     string    `json:"decisions,omitempty"`
	MessageCount  int       `json:"message_count"`
	TokensApprox  int       `json:"tokens_approx"`
}

// FieldWeights sets how many times each field's tokens are repeated in the
// indexed document.
type FieldWeights struct {
	Summary int `yaml:"summary" json:"summary"`
	Topics  int `yaml:"topics" json:"topics"`
	Files   int `yaml:"files" json:"files"`
	Issues  int `yaml:"issues" json:"issues"`
	Notes   int `yaml:"notes" json:"notes"`
}

// DefaultFieldWeights returns summary 3, topics 2, everything else 1.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{Summary: 3, Topics: 2, Files: 1, Issues: 1, Notes: 1}
}

// Validate rejects negative weights and an all-zero set.
func (w FieldWeights) Validate() error {
	values := []struct {
		name  string
		value int
	}{
		{"summary", w.Summary},
		{"topics", w.Topics},
		{"files", w.Files},
		{"issues", w.Issues},
		{"notes", w.Notes},
	}
	total := 0
	for _, v := range values {
		if v.value < 0 {
			return errors.Newf(errors.ErrCodeInvalidWeights, "field weight %s must not be negative: %d", v.name, v.value)
		}
		total += v.value
	}
	if total == 0 {
		return errors.New(errors.ErrCodeInvalidWeights, "at least one field weight must be positive", nil)
	}
	return nil
}

// ValidateID checks that id is usable as a file stem inside the sessions
// directory.
func ValidateID(id string) error {
	if id == "" {
		return errors.ValidationError("session id cannot be empty", nil)
	}
	if len(id) > maxIDLength {
		return errors.Newf(errors.ErrCodeInvalidInput, "session id too long (max %d chars)", maxIDLength)
	}
	if !validIDPattern.MatchString(id) {
		return errors.ValidationError("session id can only contain letters, numbers, dots, hyphens, and underscores", nil).
			WithDetail("id", id)
	}
	return nil
}

// Document converts the session into an indexable document.
func (s *Session) Document(w FieldWeights) store.Document {
	notes := strings.TrimSpace(strings.Join(nonEmpty(s.Notes, s.Decisions), " "))
	return store.Document{
		ID:        s.ID,
		Timestamp: s.Timestamp,
		Fields: []store.Field{
			{Name: "summary", Weight: w.Summary, Text: s.Summary},
			{Name: "topics", Weight: w.Topics, Text: strings.Join(s.Topics, " ")},
			{Name: "files", Weight: w.Files, Text: strings.Join(s.FilesModified, " ")},
			{Name: "issues", Weight: w.Issues, Text: strings.Join(s.Issues, " ")},
			{Name: "notes", Weight: w.Notes, Text: notes},
		},
	}
}

// EmbeddingText is the text sent to the embedder. The summary appears twice.
func (s *Session) EmbeddingText() string {
	var parts []string
	if summary := strings.TrimSpace(s.Summary); summary != "" {
		parts = append(parts, summary, summary)
	}
	if len(s.Topics) > 0 {
		parts = append(parts, strings.Join(s.Topics, " "))
	}
	if len(s.FilesModified) > 0 {
		files := s.FilesModified
		if len(files) > embeddingFileLimit {
			files = files[:embeddingFileLimit]
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = filepath.Base(f)
		}
		parts = append(parts, strings.Join(names, " "))
	}
	if len(s.Issues) > 0 {
		issues := s.Issues
		if len(issues) > embeddingIssueLimit {
			issues = issues[:embeddingIssueLimit]
		}
		parts = append(parts, strings.Join(issues, " "))
	}
	return strings.Join(parts, " ")
}

// HasTopic reports whether any topic equals one of want, ignoring case.
func (s *Session) HasTopic(want ...string) bool {
	for _, t := range s.Topics {
		for _, w := range want {
			if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
