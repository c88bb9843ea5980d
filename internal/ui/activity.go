package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/logtail"
)

// levelFilters is the cycle order of the activity level filter.
var levelFilters = []string{"", "info", "warn", "error"}

type activityState struct {
	viewport viewport.Model
	entries  []logtail.Entry
	level    string
	follow   bool
	err      string
}

type activityMsg struct {
	entries []logtail.Entry
	err     error
}

func newActivityState() activityState {
	return activityState{viewport: viewport.New(0, 0), follow: true}
}

// loadActivity reads the tail of the log file.
func (m Model) loadActivity() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogBufferLimit)
		if err != nil {
			return activityMsg{err: err}
		}
		return activityMsg{entries: logtail.ParseLines(lines)}
	}
}

func (m *Model) handleActivity(msg activityMsg) {
	if msg.err != nil {
		m.activity.err = msg.err.Error()
		return
	}
	m.activity.err = ""
	m.activity.entries = msg.entries
	m.refreshActivity()
}

// refreshActivity re-renders the filtered log into the viewport.
func (m *Model) refreshActivity() {
	lines := make([]string, 0, len(m.activity.entries))
	styles := m.theme.Styles()
	for _, e := range m.activity.entries {
		if m.activity.level != "" && !e.AtLeast(m.activity.level) {
			continue
		}
		line := e.Format()
		switch strings.ToLower(e.Level) {
		case "error", "dpanic", "panic", "fatal":
			line = styles.DangerText.Render(line)
		case "warn":
			line = styles.WarningText.Render(line)
		case "debug":
			line = styles.FaintText.Render(line)
		default:
			line = styles.Text.Render(line)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, styles.MutedText.Render("No activity yet"))
	}
	m.activity.viewport.SetContent(strings.Join(lines, "\n"))
	if m.activity.follow {
		m.activity.viewport.GotoBottom()
	}
}

func (m *Model) resizeActivity() {
	m.activity.viewport.Width = maxInt(m.width-2, 0)
	m.activity.viewport.Height = maxInt(m.height-chromeHeight-2, 1)
	m.refreshActivity()
}

func (m *Model) handleActivityKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.CycleLevel):
		m.activity.level = nextLevel(m.activity.level)
		m.refreshActivity()
		return nil
	case key.Matches(msg, m.keys.ToggleFollow):
		m.activity.follow = !m.activity.follow
		if m.activity.follow {
			m.activity.viewport.GotoBottom()
			return m.loadActivity()
		}
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return m.loadActivity()
	case key.Matches(msg, m.keys.Top):
		m.activity.follow = false
		m.activity.viewport.GotoTop()
		return nil
	case key.Matches(msg, m.keys.Bottom):
		m.activity.viewport.GotoBottom()
		return nil
	}
	m.activity.follow = false
	var cmd tea.Cmd
	m.activity.viewport, cmd = m.activity.viewport.Update(msg)
	return cmd
}

func nextLevel(current string) string {
	for i, l := range levelFilters {
		if l == current {
			return levelFilters[(i+1)%len(levelFilters)]
		}
	}
	return levelFilters[0]
}

func (m Model) renderActivity() string {
	styles := m.theme.Styles()
	level := "all"
	if m.activity.level != "" {
		level = titleCase(m.activity.level) + "+"
	}
	follow := ternary(m.activity.follow, "following", "paused")

	var b strings.Builder
	b.WriteString(styles.AccentText.Render("Activity"))
	b.WriteString(styles.MutedText.Render("  level " + level + "  " + follow + "  "))
	b.WriteString(styles.FaintText.Render(truncateMiddle(m.logPath, maxInt(m.width-40, 10))))
	b.WriteString("\n")
	if m.activity.err != "" {
		b.WriteString(styles.DangerText.Render(m.activity.err))
		return b.String()
	}
	b.WriteString(m.activity.viewport.View())
	return b.String()
}
