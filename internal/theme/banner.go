// Package theme styles the CLI output.
package theme

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"xnom/internal/model"
)

var (
	Accent  = lipgloss.Color("#1D9BF0") // X blue
	Muted   = lipgloss.Color("#8899A6")
	Success = lipgloss.Color("#17BF63")
	Warning = lipgloss.Color("#FFAD1F")
	Danger  = lipgloss.Color("#E0245E")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	subStyle   = lipgloss.NewStyle().Foreground(Muted).Italic(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Accent).Padding(0, 2)
	keyStyle   = lipgloss.NewStyle().Foreground(Muted).Width(22)
)

// Banner returns the startup banner.
func Banner() string {
	art := titleStyle.Render("✕ N O M") + "\n" +
		subStyle.Render("notifications that matter, engagement on a budget")
	return boxStyle.Render(art) + "\n"
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, Banner())
}

// Priority renders a priority in its colour.
func Priority(p model.Priority) string {
	c := Muted
	switch p {
	case model.PriorityHigh:
		c = Danger
	case model.PriorityMedium:
		c = Warning
	}
	return lipgloss.NewStyle().Foreground(c).Bold(p == model.PriorityHigh).Render(string(p))
}

// Outcome renders ok/failed.
func Outcome(success bool) string {
	if success {
		return lipgloss.NewStyle().Foreground(Success).Render("ok")
	}
	return lipgloss.NewStyle().Foreground(Danger).Render("failed")
}

// KV renders a titled block of key/value lines, keys sorted.
func KV(title string, kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(keyStyle.Render(k))
		b.WriteString(kv[k])
	}
	return boxStyle.Render(b.String()) + "\n"
}
