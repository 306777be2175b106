package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorizeLogs(t *testing.T) {
	styled := "\x1b[1mINFO\x1b[0m already styled"
	logs := []string{
		"2024/01/01 INFO Server started",
		"2024/01/01 WARN Send queue full",
		"2024/01/01 ERRO Store call failed",
		"plain line",
		styled,
	}

	out := ColorizeLogs(logs)

	for i, level := range []string{"INFO", "WARN", "ERRO"} {
		assert.Contains(t, out[i], level)
		assert.True(t, strings.HasPrefix(out[i], "2024/01/01 "), "prefix kept: %q", out[i])
	}
	assert.Equal(t, "plain line", out[3])
	assert.Equal(t, styled, out[4])
	assert.Equal(t, 1, strings.Count(out[0], "Server started"))
}
