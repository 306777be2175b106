package utils

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// levelBadges maps the level prefixes written by charmbracelet/log to their console badge colours.
var levelBadges = []struct {
	level      string
	background lipgloss.Color
	foreground lipgloss.Color
}{
	{"INFO", "87", "16"},
	{"WARN", "214", "0"},
	{"ERRO", "204", "0"},
	{"FATA", "134", "0"},
	{"DEBU", "63", "0"},
}

func badge(level string, background, foreground lipgloss.Color) string {
	return lipgloss.NewStyle().
		Padding(0, 1, 0, 1).
		Bold(true).
		MaxWidth(80).
		Background(background).
		Foreground(foreground).
		Render(level)
}

// ColorizeLogs replaces the first level prefix of each plain log line with a coloured badge. Lines
// that already carry ANSI escapes are left alone. logs is modified in place and returned.
func ColorizeLogs(logs []string) []string {
	for i, line := range logs {
		// Only style if not already styled (check for ANSI codes)
		if strings.Contains(line, "\x1b[") {
			continue
		}
		for _, b := range levelBadges {
			if strings.Contains(line, b.level) {
				logs[i] = strings.Replace(line, b.level, badge(b.level, b.background, b.foreground), 1)
				break
			}
		}
	}
	return logs
}
