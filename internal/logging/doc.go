// Package logging configures structured slog output for sessionrecall.
// Logs are JSON lines written to a size-rotated file under ~/.sessionrecall/logs/,
// optionally mirrored to stderr. Stdio server mode never writes to stdout or stderr.
// Viewer reads the file back for 'recall logs'.
package logging
