package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/sessionrecall/internal/errors"
)

// Extension is the file extension of session files.
const Extension = ".md"

// maxSectionRunes bounds the notes and decisions excerpts.
const maxSectionRunes = 500

var (
	topicsPattern      = regexp.MustCompile(`\*\*Topics\*\*:\s*\[(.*?)\]`)
	descriptionPattern = regexp.MustCompile(`\*\*Description\*\*:[ \t]*(.*)`)
	statusPattern      = regexp.MustCompile(`\*\*Status\*\*:[ \t]*(.*)`)
	capturedPattern    = regexp.MustCompile(`\*\*Captured\*\*:\s*(\S+)`)
	filesPattern       = regexp.MustCompile("(?s)## Files Modified.*?```(.*?)```")
	issuePattern       = regexp.MustCompile(`beads-[a-z0-9]+`)
)

var capturedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

var idLayouts = []string{
	"2006-01-02-1504",
	"2006-01-02-150405",
	"2006-01-02",
	"20060102-150405",
}

// Parse reads and parses a session file. When neither the captured line nor
// the file name carries a timestamp, the file's modification time is used.
func Parse(path string) (*Session, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "session file not found", err).
				WithDetail("path", path)
		}
		return nil, errors.New(errors.ErrCodeSessionParse, "failed to read session file", err).
			WithDetail("path", path)
	}

	sess, err := ParseContent(filepath.Base(path), string(content))
	if err != nil {
		return nil, err
	}
	sess.File = path
	if sess.Timestamp.IsZero() {
		if info, statErr := os.Stat(path); statErr == nil {
			sess.Timestamp = info.ModTime().UTC()
		}
	}
	return sess, nil
}

// IDFromPath returns the session ID for a file path: its base name without
// the extension.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseContent parses session markdown. name is the file name; its stem
// becomes the session ID.
func ParseContent(name, content string) (*Session, error) {
	id := IDFromPath(name)
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.New(errors.ErrCodeSessionParse, "session file is empty", nil).
			WithDetail("file", name)
	}

	sess := &Session{
		ID:            id,
		File:          name,
		Status:        DefaultStatus,
		Topics:        []string{},
		FilesModified: []string{},
		Issues:        []string{},
		MessageCount:  strings.Count(content, "\n## ") + strings.Count(content, "\n### "),
		TokensApprox:  len(content) / 4,
	}

	if m := topicsPattern.FindStringSubmatch(content); m != nil {
		for _, t := range strings.Split(m[1], ",") {
			t = strings.Trim(strings.TrimSpace(t), `"'`)
			if t != "" {
				sess.Topics = append(sess.Topics, t)
			}
		}
	}
	if m := descriptionPattern.FindStringSubmatch(content); m != nil {
		sess.Summary = strings.TrimSpace(m[1])
	}
	if m := statusPattern.FindStringSubmatch(content); m != nil {
		if status := strings.ToLower(strings.TrimSpace(m[1])); status != "" {
			sess.Status = status
		}
	}
	if m := capturedPattern.FindStringSubmatch(content); m != nil {
		sess.Captured = m[1]
	}
	if m := filesPattern.FindStringSubmatch(content); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			if strings.HasPrefix(line, "Unable") {
				continue
			}
			if line = strings.TrimSpace(line); line != "" {
				sess.FilesModified = append(sess.FilesModified, line)
			}
		}
	}
	sess.Issues = uniqueSorted(issuePattern.FindAllString(content, -1))
	sess.Notes = section(content, "## Session Notes")
	sess.Decisions = section(content, "### Key Decisions")
	sess.Timestamp = resolveTimestamp(sess.Captured, id)

	return sess, nil
}

// section returns the text after heading up to the next "##", trimmed and
// truncated.
func section(content, heading string) string {
	start := strings.Index(content, heading)
	if start < 0 {
		return ""
	}
	body := content[start+len(heading):]
	if end := strings.Index(body, "##"); end >= 0 {
		body = body[:end]
	}
	return truncateRunes(strings.TrimSpace(body), maxSectionRunes)
}

func resolveTimestamp(captured, id string) time.Time {
	if captured != "" {
		for _, layout := range capturedLayouts {
			if ts, err := time.Parse(layout, captured); err == nil {
				return ts.UTC()
			}
		}
	}
	if prefix, _, ok := strings.Cut(id, "_"); ok {
		for _, layout := range idLayouts {
			if ts, err := time.Parse(layout, prefix); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
