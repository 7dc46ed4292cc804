package utils

import (
	"regexp"
	"strings"
)

// FirstNonEmpty returns the first argument that is not blank
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SplitByMultipleDelimiters splits s on any of the delimiters, trimming each
// part and dropping empty ones
func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	if len(delimiters) == 0 {
		return []string{s}
	}
	re := regexp.MustCompile("[" + regexp.QuoteMeta(strings.Join(delimiters, "")) + "]")
	parts := re.Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
