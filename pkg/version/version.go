package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var Version string

// Get returns the embedded version without surrounding whitespace
func Get() string {
	return strings.TrimSpace(Version)
}
