package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NethermindEth/chaosfeed/core"
)

const (
	rosterWidth  = 28
	monitorWidth = 44
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n")

	h := m.bodyHeight()
	feedWidth := max(m.width-rosterWidth-monitorWidth, 24)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panel("Agents", m.rosterLines(rosterWidth-4), rosterWidth, h),
		panel("Feed", m.feedLines(feedWidth-4, h-1), feedWidth, h),
		m.renderSide(h),
	)
	b.WriteString(body + "\n")

	b.WriteString(statusBarStyle.Render(m.insights.StatusLine()))
	if m.status != "" {
		st := dimStyle
		if m.statusErr {
			st = errorStyle
		}
		b.WriteString("  " + st.Render(m.status))
	}
	b.WriteString("\n")

	switch m.mode {
	case modeTopic:
		b.WriteString(statusBarStyle.Render("Topic: ") + m.input.View())
	case modeName:
		b.WriteString(statusBarStyle.Render("Name: ") + m.input.View())
	case modeBio:
		b.WriteString(statusBarStyle.Render("Bio: ") + m.input.View())
	default:
		b.WriteString(helpStyle.Render("  s: start/stop  t: topic  a: add agent  d: load defaults  x: delete  ↑↓: select  pgup/pgdn: scroll  q: quit"))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	badge := idleBadge.Render("idle")
	if m.state.Running {
		badge = runningBadge.Render("running")
	}
	topic := m.state.Topic
	if topic == "" {
		topic = "(no topic)"
	}
	return titleStyle.Render("chaosfeed") + " " + badge + " " + topic
}

// bodyHeight is the panel height: everything but header, status and help.
func (m Model) bodyHeight() int {
	return max(m.height-5, 3)
}

func panel(title string, lines []string, width, height int) string {
	content := panelTitleStyle.Render(title) + "\n" + strings.Join(clip(lines, 0, height-1), "\n")
	return panelStyle.Width(width - 2).Height(height).Render(content)
}

func (m Model) renderSide(h int) string {
	notes := m.notificationLines()
	noteHeight := min(len(notes)+2, h/3+1)
	return lipgloss.JoinVertical(lipgloss.Left,
		panel("Recent activity", notes, monitorWidth, noteHeight),
		panel("System monitor", m.monitorLines(monitorWidth-4, h-noteHeight-3), monitorWidth, h-noteHeight-2),
	)
}

func (m Model) rosterLines(width int) []string {
	if len(m.state.Agents) == 0 {
		return []string{dimStyle.Render("No agents yet. Press a or d.")}
	}
	lines := make([]string, 0, len(m.state.Agents))
	for i, a := range m.state.Agents {
		name := truncate(a.Name, width-2)
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render("› "+name))
			continue
		}
		lines = append(lines, "  "+authorStyle(a.Color).Render(name))
	}
	return lines
}

// feedLines renders threads newest first with replies indented under their
// parent. Orphan replies are not shown, as they belong to no thread.
func (m Model) feedLines(width, height int) []string {
	threads := m.state.Feed.Threads()
	if len(threads) == 0 {
		return []string{dimStyle.Render(core.EmptyFeedText)}
	}

	var lines []string
	for i := len(threads) - 1; i >= 0; i-- {
		lines = append(lines, m.threadLines(threads[i], 0, width)...)
		lines = append(lines, "")
	}
	offset := min(m.feedOffset, max(len(lines)-height, 0))
	return clip(lines, offset, height)
}

func (m Model) threadLines(t core.Thread, depth, width int) []string {
	indent := strings.Repeat("  ", min(depth, 6))
	w := max(width-len(indent), 10)

	header := fmt.Sprintf("%s%s %s",
		indent,
		authorStyle(core.AuthorColor(m.state.Agents, t.Author)).Render(t.Author),
		dimStyle.Render(fmt.Sprintf("#%d · ▲ %d", t.ID, t.Likes)))
	lines := []string{header}
	for _, l := range strings.Split(lipgloss.NewStyle().Width(w).Render(t.Content), "\n") {
		lines = append(lines, indent+l)
	}
	for _, r := range t.Replies {
		lines = append(lines, m.threadLines(r, depth+1, width)...)
	}
	return lines
}

func (m Model) notificationLines() []string {
	if len(m.state.Notifications) == 0 {
		return []string{dimStyle.Render("Nothing yet")}
	}
	lines := make([]string, 0, len(m.state.Notifications))
	for _, n := range m.state.Notifications {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			dimStyle.Render(n.Timestamp.Format("15:04:05")),
			authorStyle(core.AuthorColor(m.state.Agents, n.AgentName)).Render(n.AgentName),
			n.ActionType))
	}
	return lines
}

// monitorLines shows the newest lines of the monitor window that fit.
func (m Model) monitorLines(width, height int) []string {
	logs := core.Tail(m.state.Logs, core.MonitorWindow)
	if height > 0 && len(logs) > height {
		logs = logs[len(logs)-height:]
	}
	lines := make([]string, 0, len(logs))
	for _, e := range logs {
		line := truncate(e.String(), width)
		switch e.Level {
		case core.LevelWarn:
			line = warnStyle.Render(line)
		case core.LevelError:
			line = errorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func clip(lines []string, offset, n int) []string {
	if offset >= len(lines) {
		return nil
	}
	lines = lines[offset:]
	if n >= 0 && len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 2 {
		return string(r[:width])
	}
	return string(r[:width-2]) + ".."
}
