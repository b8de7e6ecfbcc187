// Package render prints a tree snapshot as indented text for the CLI.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vk/buildtreego/internal/aggregator"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skippedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	durationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	severityStyles = map[string]lipgloss.Style{
		"error":   failureStyle,
		"warning": skippedStyle,
		"info":    pendingStyle,
	}
)

// Tree renders the snapshot as an indented tree, one node per line.
func Tree(snap *aggregator.TreeSnapshot) string {
	var b strings.Builder
	for _, root := range snap.Roots {
		renderNode(&b, root, 0)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *aggregator.NodeSnapshot, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(glyph(n))
	b.WriteString(" ")
	b.WriteString(label(n))

	if n.Errors > 0 || n.Warnings > 0 {
		b.WriteString(durationStyle.Render(fmt.Sprintf(" (%d errors, %d warnings)", n.Errors, n.Warnings)))
	}
	if n.Duration != "" && n.Duration != "running" {
		b.WriteString(" ")
		b.WriteString(durationStyle.Render(n.Duration))
	}
	if n.Hint != "" {
		b.WriteString(" ")
		b.WriteString(hintStyle.Render(n.Hint))
	}
	b.WriteString("\n")

	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
}

func label(n *aggregator.NodeSnapshot) string {
	name := n.Name
	if name == "" {
		name = n.ID
	}
	if style, ok := severityStyles[n.Severity]; ok && n.State == "pending" {
		return style.Render(name)
	}
	return name
}

func glyph(n *aggregator.NodeSnapshot) string {
	switch n.State {
	case "success":
		return successStyle.Render("✓")
	case "failure":
		return failureStyle.Render("✗")
	case "skipped":
		return skippedStyle.Render("↷")
	case "running":
		return runningStyle.Render("…")
	}
	if style, ok := severityStyles[n.Severity]; ok {
		return style.Render("•")
	}
	return pendingStyle.Render("·")
}
