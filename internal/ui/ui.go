// Package ui holds the terminal rendering helpers shared by br commands.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/braid-dev/braid/internal/types"
)

// Core styles. Colors degrade automatically on dumb terminals via termenv.
var (
	styleID       = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	styleMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleGood     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// IsTTY reports whether stdout is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ColorEnabled reports whether the terminal supports color output.
func ColorEnabled() bool {
	return IsTTY() && termenv.EnvColorProfile() != termenv.Ascii
}

func maybe(style lipgloss.Style, s string) string {
	if !ColorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderID styles an issue ID.
func RenderID(id string) string { return maybe(styleID, id) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return maybe(styleMuted, s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return maybe(styleWarn, s) }

// RenderGood styles a success marker.
func RenderGood(s string) string { return maybe(styleGood, s) }

// RenderPriority styles a priority cell; critical pops.
func RenderPriority(p int) string {
	s := fmt.Sprintf("P%d", p)
	if p == 0 {
		return maybe(styleCritical, s)
	}
	return s
}

// IssueLine renders one issue as a compact list row.
func IssueLine(issue *types.Issue) string {
	status := string(issue.Status)
	var b strings.Builder
	b.WriteString(RenderID(issue.ID))
	b.WriteString("  ")
	b.WriteString(RenderPriority(issue.Priority))
	b.WriteString("  ")
	b.WriteString(fmt.Sprintf("%-11s", status))
	b.WriteString("  ")
	b.WriteString(issue.Title)
	if issue.Assignee != "" {
		b.WriteString(RenderMuted("  @" + issue.Assignee))
	}
	return b.String()
}

// IssueTable renders issues one per line.
func IssueTable(issues []*types.Issue) string {
	var b strings.Builder
	for _, issue := range issues {
		b.WriteString(IssueLine(issue))
		b.WriteByte('\n')
	}
	return b.String()
}

// TreeLines renders dependency tree nodes as indented text.
func TreeLines(nodes []*types.TreeNode) string {
	var b strings.Builder
	for _, node := range nodes {
		indent := strings.Repeat("  ", node.Depth)
		marker := ""
		if node.Truncated {
			marker = RenderMuted(" …")
		}
		edge := ""
		if node.Depth > 0 && node.EdgeType != "" && node.EdgeType != types.DepBlocks {
			edge = RenderMuted(" [" + string(node.EdgeType) + "]")
		}
		fmt.Fprintf(&b, "%s%s  %s%s%s\n", indent, RenderID(node.ID), node.Title, edge, marker)
	}
	return b.String()
}

// MermaidLines renders tree nodes as a Mermaid flowchart.
func MermaidLines(nodes []*types.TreeNode) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, node := range nodes {
		fmt.Fprintf(&b, "    %s[\"%s: %s\"]\n", mermaidID(node.ID), node.ID, escapeMermaid(node.Title))
	}
	for _, node := range nodes {
		if node.ParentID != "" {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(node.ParentID), mermaidID(node.ID))
		}
	}
	return b.String()
}

func mermaidID(id string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(id)
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, `"`, `#quot;`)
}
