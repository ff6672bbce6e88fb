package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/hygeia-go/internal/service"
	"golang.org/x/term"
)

const pollInterval = 250 * time.Millisecond

// errCancelled is returned when the user aborts a run from the progress UI.
var errCancelled = errors.New("cancelled by user")

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	Header     lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Warning:    lipgloss.Color("#FFAF00"), // amber
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	Header:     lipgloss.Color("#AF87FF"), // purple
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Header).Bold(true)
}

// tickMsg triggers a redraw of the elapsed-time bar.
type tickMsg time.Time

// runStartedMsg carries the tracked run once the engine is about to start.
type runStartedMsg struct {
	run *service.Run
}

// workDoneMsg signals that the engine call returned.
type workDoneMsg struct {
	err error
}

// progressModel is the bubbletea model for an engine run. The bar shows
// elapsed time against the run timeout; the engine reports no finer progress.
type progressModel struct {
	label    string
	run      *service.Run
	progress progress.Model
	theme    Theme
	cancel   context.CancelFunc
	done     bool
	quitting bool
	err      error
}

func newProgressModel(label string, cancel context.CancelFunc) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return progressModel{
		label:    label,
		progress: prog,
		theme:    defaultTheme,
		cancel:   cancel,
	}
}

// Init returns the initial command (start ticking).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.done = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case runStartedMsg:
		m.run = msg.run
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}
	if m.run == nil {
		return m.theme.statusStyle().Render("Preparing "+m.label+"...") + "\n"
	}

	snap := m.run.Snapshot()
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s %s]", m.label, snap.Status))
	bar := m.progress.ViewAs(m.run.Fraction())
	elapsed := fmt.Sprintf("%s / %s", m.run.Elapsed().Truncate(time.Second), snap.Timeout)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, elapsed, hint)
}

func (m progressModel) finalView() string {
	switch {
	case m.quitting:
		return m.theme.hintStyle().Render(fmt.Sprintf("\n%s cancelled.\n", m.label))
	case m.err != nil:
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s failed: %s\n", m.label, m.err))
	}
	elapsed := ""
	if m.run != nil {
		elapsed = fmt.Sprintf(" in %s", m.run.Elapsed().Round(time.Millisecond))
	}
	return m.theme.completedStyle().Render(fmt.Sprintf("✓ %s completed%s", m.label, elapsed)) + "\n"
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// interactive reports whether stdout is a terminal able to host the progress UI.
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runWithProgress executes work, showing a progress bar for the tracked run
// when show is true. Ctrl+C cancels the context passed to work.
func runWithProgress(ctx context.Context, label string, show bool, work func(ctx context.Context, onStart func(*service.Run)) error) error {
	if !show {
		return work(ctx, nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(label, cancel))
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		err := work(ctx, func(r *service.Run) { p.Send(runStartedMsg{run: r}) })
		p.Send(workDoneMsg{err: err})
	}()

	finalModel, err := p.Run()
	// the engine subprocess and its workdir are gone once work returns
	cancel()
	<-finished
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return errCancelled
		}
		return m.err
	}
	return nil
}
