package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiy/garbageman/internal/config"
	"github.com/xiy/garbageman/internal/store"
)

type tickMsg time.Time
type dashboardMsg struct {
	stats    []ModelStats
	err      error
	duration time.Duration
}

type model struct {
	ctx      context.Context
	reg      store.Registry
	schedule config.Schedule
	dispatch bool
	stats    []ModelStats
	lastErr  error
	lastTick time.Time
	logLines []string
	maxLogs  int
	width    int
	height   int
}

// Run starts the purge dashboard. It only reads; nothing is deleted.
func Run(ctx context.Context, reg store.Registry, cfg config.Config) error {
	m := model{
		ctx:      ctx,
		reg:      reg,
		schedule: cfg.Schedule,
		dispatch: cfg.DispatchPurgeEvents,
		maxLogs:  10,
	}
	m = m.appendLog("admin UI started")
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStatsCmd(m.ctx, m.reg, m.schedule), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m = m.appendLog("received quit signal")
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.lastTick = time.Time(msg)
		return m, tea.Batch(fetchStatsCmd(m.ctx, m.reg, m.schedule), tickCmd())
	case dashboardMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			var trashed, eligible int64
			for _, s := range msg.stats {
				trashed += s.Trashed
				eligible += s.Eligible
			}
			m = m.appendLog(fmt.Sprintf("refresh ok models=%d trashed=%d eligible=%d (%s)",
				len(msg.stats), trashed, eligible, formatDuration(msg.duration)))
		} else {
			m = m.appendLog(fmt.Sprintf("refresh error: %v", msg.err))
		}
	}
	return m, nil
}

func (m model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("garbageman admin")
	meta := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("q to quit • refresh every 2s")

	logBody := "(no log events yet)"
	if len(m.logLines) > 0 {
		logBody = strings.Join(m.logLines, "\n")
	}

	width := 100
	if m.width > 0 {
		width = max(60, m.width-2)
	}
	paneHeight := 9
	if m.height > 0 {
		paneHeight = max(8, (m.height-8)/2)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		meta,
		"",
		renderPane("Schedule", m.renderSchedule(), width, paneHeight),
		renderPane("General Logs", logBody, width, paneHeight),
	)
}

func (m model) renderSchedule() string {
	strategy := "bulk delete"
	if m.dispatch {
		strategy = "per record with events"
	}
	header := fmt.Sprintf("Strategy: %s    Last refresh: %s", strategy, formatTime(m.lastTick))
	body := header + "\n\n" + formatStatsTable(m.stats)
	if m.lastErr != nil {
		body += "\n\nLast error: " + truncateText(compactWhitespace(m.lastErr.Error()), 120)
	}
	return body
}

func fetchStatsCmd(ctx context.Context, reg store.Registry, schedule config.Schedule) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		stats, err := Collect(ctx, reg, schedule, time.Now())
		return dashboardMsg{stats: stats, err: err, duration: time.Since(start)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func formatStatsTable(rows []ModelStats) string {
	if len(rows) == 0 {
		return "(no models configured to purge)"
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, fmt.Sprintf("%-24s %-18s %5s %9s %9s  %s", "MODEL", "TABLE", "DAYS", "TRASHED", "ELIGIBLE", "STATUS"))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-24s %-18s %5d %9d %9d  %s",
			truncateText(r.Model, 24),
			truncateText(r.Table, 18),
			r.Days,
			r.Trashed,
			r.Eligible,
			r.Status,
		))
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func (m model) appendLog(line string) model {
	if strings.TrimSpace(line) == "" {
		return m
	}
	entry := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), line)
	m.logLines = append(m.logLines, entry)
	if m.maxLogs <= 0 {
		m.maxLogs = 10
	}
	if len(m.logLines) > m.maxLogs {
		m.logLines = m.logLines[len(m.logLines)-m.maxLogs:]
	}
	return m
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func renderPane(title, body string, width, height int) string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	if width > 0 {
		style = style.Width(width)
	}
	if height > 0 {
		style = style.Height(height)
	}
	return style.Render(title + "\n\n" + body)
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func compactWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
