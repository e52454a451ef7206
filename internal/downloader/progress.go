package downloader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alvarorichard/animebinge/internal/util"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E4405F"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type (
	tickMsg     time.Time
	progressMsg Progress
	doneMsg     struct{}
)

// progressModel renders one download
type progressModel struct {
	label     string
	bar       progress.Model
	last      Progress
	cancelled bool
	finished  bool
}

func newProgressModel(label string) *progressModel {
	return &progressModel{
		label: label,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, 80)
		return m, nil
	case tickMsg:
		if m.finished {
			return m, tea.Quit
		}
		return m, tickCmd()
	case progressMsg:
		m.last = Progress(msg)
		return m, m.bar.SetPercent(m.last.Fraction())
	case doneMsg:
		m.finished = true
		return m, tea.Sequence(m.bar.SetPercent(1), tea.Quit)
	case progress.FrameMsg:
		newModel, cmd := m.bar.Update(msg)
		m.bar = newModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	status := "Waiting for yt-dlp..."
	if m.last.Total > 0 {
		status = fmt.Sprintf("%.1f%% of %.1f MB", m.last.Fraction()*100, float64(m.last.Total)/(1<<20))
	} else if m.last.Downloaded > 0 {
		status = fmt.Sprintf("%.1f MB", float64(m.last.Downloaded)/(1<<20))
	}
	return fmt.Sprintf("%s\n%s\n%s\n", labelStyle.Render(m.label), m.bar.View(), statusStyle.Render(status))
}

// WithProgress runs fn while drawing a progress bar fed by the ProgressFunc
// it receives. Ctrl+C cancels the context handed to fn.
func WithProgress(ctx context.Context, label string, fn func(ctx context.Context, report ProgressFunc) Result) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newProgressModel(label)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(os.Stderr))

	results := make(chan Result, 1)
	go func() {
		r := fn(ctx, func(pr Progress) { p.Send(progressMsg(pr)) })
		results <- r
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		util.Debug("Progress display stopped", "error", err)
	}
	if m.cancelled {
		cancel()
	}
	return <-results
}
