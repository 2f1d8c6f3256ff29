// Package preflight checks that recall can run in the current environment:
// the sessions directory is readable, the index directory is writable and
// the configured embedder answers.
//
// Checks marked Required stop the index from working when they fail. The
// rest degrade a feature, such as semantic search or live watching.
package preflight
