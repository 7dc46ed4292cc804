package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitByMultipleDelimiters(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, SplitByMultipleDelimiters("a:1; b:2,,c:3", ";", ","))
	assert.Equal(t, []string{"x"}, SplitByMultipleDelimiters("x"))
	assert.Empty(t, SplitByMultipleDelimiters(" , ", ","))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", FirstNonEmpty())
}
