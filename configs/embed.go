// Package configs holds configuration templates embedded at build time.
//
// The templates are used by:
//   - internal/config InitProjectConfig, behind 'recall config init --project'
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .recall.yaml written into a
// project. Every active key matches the built-in default.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
