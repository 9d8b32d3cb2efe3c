package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/logcatotel/pkg/logcat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	levelStyles = map[logcat.Level]lipgloss.Style{
		logcat.LevelError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		logcat.LevelWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		logcat.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		logcat.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		logcat.LevelVerbose: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	detailH := max(a.height/4, 7)
	logsH := a.height - detailH - statusBarH - 4
	w := a.width - 4

	logs := a.renderLogs(w, logsH)
	logPane := a.paneBox(PaneLogs, a.logTitle(), logs, w, logsH)

	detail := a.renderDetail()
	detailPane := a.paneBox(PaneDetail, " Record ", detail, w, detailH)

	return lipgloss.JoinVertical(lipgloss.Left, logPane, detailPane, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderLogs(w, h int) string {
	lines := a.visibleLines()
	var b strings.Builder
	if len(lines) == 0 {
		b.WriteString(dimStyle.Render("no log output"))
	}

	maxVisible := max(h-2, 1)
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(lines) && i-start < maxVisible; i++ {
		row := formatRow(lines[i], w)
		if i == a.selectedIdx && !a.follow {
			row = selectedStyle.Width(w).Render(row)
		}
		b.WriteString(row + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}
	return b.String()
}

// formatRow renders "HH:MM:SS.mmm L tag: msg", truncated to w columns.
func formatRow(l logcat.LogLine, w int) string {
	prefix := fmt.Sprintf("%s %s ", clock(l.Timestamp), levelBadge(l.Level))
	rest := truncate(l.Tag+": "+l.Msg, max(w-len(clock(l.Timestamp))-3, 4))
	return prefix + rest
}

func (a App) renderDetail() string {
	l := a.selectedLine()
	if l == nil {
		return dimStyle.Render("no record selected")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Time:   %s\n", time.UnixMilli(int64(l.Timestamp)).Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, "Level:  %s\n", levelStyle(l.Level).Render(l.Level.Name()))
	fmt.Fprintf(&b, "Tag:    %s\n", l.Tag)
	fmt.Fprintf(&b, "UID:    %s  PID: %d  TID: %d\n", l.UID, l.PID, l.TID)
	fmt.Fprintf(&b, "Msg:    %s\n", l.Msg)
	return b.String()
}

func (a App) logTitle() string {
	title := fmt.Sprintf(" logcat ≥%s ", a.minLevel)
	if q := a.search.Value(); q != "" {
		title += dimStyle.Render("/"+q) + " "
	}
	if a.paused {
		title += dimStyle.Render(fmt.Sprintf("[PAUSED +%d]", a.missed)) + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	if a.connected {
		s := a.stats
		left = fmt.Sprintf("%s | %s pid %d | read %d emitted %d rejected %d",
			left, s.State, s.Pid, s.LinesRead, s.Emitted, s.Rejected)
	}
	right := "j/k:nav G:follow space:pause v/d/i/w/e:level /:search c:clear q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func levelStyle(l logcat.Level) lipgloss.Style {
	if s, ok := levelStyles[l]; ok {
		return s
	}
	return dimStyle
}

func levelBadge(l logcat.Level) string {
	return levelStyle(l).Render(string(l))
}

func clock(ms uint64) string {
	return time.UnixMilli(int64(ms)).Format("15:04:05.000")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
