// Package version exposes the taskweave build version.
package version

import (
	_ "embed"
	"strings"
)

// raw is the embedded VERSION file content, newline included.
//
//go:embed VERSION
var raw string

// Get returns the version string with surrounding whitespace trimmed.
func Get() string {
	return strings.TrimSpace(raw)
}
