// ABOUTME: Renders the voidluxtop layout: title bar, tab strip, active table, and status line.
// ABOUTME: Writes title, tab strip (lipgloss.JoinHorizontal), active table, and status bar one after another.
package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func renderView(m model) string {
	if m.width == 0 {
		return "Connecting to voidlux node...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("voidluxtop") + " — " + m.client.baseURL + "\n")
	b.WriteString(renderTabs(m.active) + "\n\n")
	b.WriteString(m.tables[m.active].View() + "\n")
	b.WriteString(renderStatusLine(m))
	return b.String()
}

func renderTabs(active tab) string {
	parts := make([]string, 0, int(tabCount))
	for t := tab(0); t < tabCount; t++ {
		if t == active {
			parts = append(parts, activeTabStyle.Render(t.label()))
		} else {
			parts = append(parts, tabStyle.Render(t.label()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderStatusLine(m model) string {
	if m.lastErr != nil {
		return statusBarStyle.Render(errorStyle.Render(fmt.Sprintf("poll error: %v", m.lastErr)))
	}
	line := fmt.Sprintf("last poll %s  |  tab/←→ switch panel  |  q quit", m.lastPolled.Format("15:04:05"))
	return statusBarStyle.Render(helpStyle.Render(line))
}
