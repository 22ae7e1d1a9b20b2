package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/quizsync-go/internal/generation"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Warning:    lipgloss.Color("#FFAF00"), // amber
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// updateMsg carries one reconciliation update.
type updateMsg generation.Update

// doneMsg signals that the handle finished and its update channel closed.
type doneMsg struct{}

// progressModel is the bubbletea model for a reconciling generation job.
type progressModel struct {
	handle      *generation.Handle
	maxAttempts int
	last        generation.Update
	progress    progress.Model
	theme       Theme
	done        bool
	quitting    bool
	result      generation.Result
}

// newProgressModel creates a progress model for h. maxAttempts scales the bar.
func newProgressModel(h *generation.Handle, maxAttempts int) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		handle:      h,
		maxAttempts: maxAttempts,
		last:        generation.Update{Phase: generation.PhaseDispatched},
		progress:    prog,
		theme:       defaultTheme,
	}
}

// Init starts listening for updates.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.handle),
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
			m.handle.Cancel()
			return m, tea.Quit
		}

	case updateMsg:
		m.last = generation.Update(msg)
		return m, waitForUpdate(m.handle)

	case doneMsg:
		m.done = true
		m.result = m.handle.Result()
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
	if m.done || m.quitting {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.last.Phase))

	var pct float64
	if m.maxAttempts > 0 {
		pct = float64(m.last.Attempt) / float64(m.maxAttempts)
	}
	bar := m.progress.ViewAs(pct)

	detail := "waiting for the backend"
	if m.last.Attempt > 0 {
		detail = fmt.Sprintf("check %d/%d", m.last.Attempt, m.maxAttempts)
		if m.last.Next > 0 {
			detail += fmt.Sprintf(", next in %s", m.last.Next.Round(100*time.Millisecond))
		}
	}
	if m.last.Err != nil {
		detail += m.theme.errorStyle().Render(" (last check failed)")
	}

	hint := m.theme.hintStyle().Render("Press q or Ctrl+C to stop waiting")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, detail, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nStopped waiting. Tasks generated later show up in 'quizsync tasks'.\n")
	}
	return renderResult(m.theme, m.result)
}

// renderResult phrases a finished job by its outcome.
func renderResult(theme Theme, res generation.Result) string {
	switch res.Phase {
	case generation.PhaseResolved:
		if len(res.Tasks) == 0 {
			return theme.warningStyle().Render("! No new tasks confirmed yet") + "\n"
		}
		msg := theme.completedStyle().Render(fmt.Sprintf("✓ %d new task(s) generated", len(res.Tasks)))
		if len(res.Dropped) > 0 {
			msg += theme.hintStyle().Render(fmt.Sprintf(" (%d could not be loaded)", len(res.Dropped)))
		}
		return msg + "\n"
	case generation.PhaseTimedOut:
		if len(res.Tasks) > 0 {
			return theme.completedStyle().Render(fmt.Sprintf("✓ %d new task(s) found after the final check", len(res.Tasks))) + "\n"
		}
		msg := "! No new tasks confirmed yet."
		if res.UnitTaskCount >= 0 {
			msg += fmt.Sprintf(" The unit currently has %d task(s).", res.UnitTaskCount)
		}
		return theme.warningStyle().Render(msg+" Check the unit again later.") + "\n"
	case generation.PhaseCancelled:
		return theme.hintStyle().Render("Generation cancelled.") + "\n"
	}
	return theme.errorStyle().Render(fmt.Sprintf("✗ Generation failed: %v", res.Err)) + "\n"
}

// waitForUpdate reads the next update off the handle in a command so
// Update never blocks.
func waitForUpdate(h *generation.Handle) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-h.Updates()
		if !ok {
			return doneMsg{}
		}
		return updateMsg(u)
	}
}

// RunGenerationProgress runs the interactive progress UI until the job
// finishes or the user stops waiting, which cancels the job.
func RunGenerationProgress(h *generation.Handle, maxAttempts int) (generation.Result, error) {
	p := tea.NewProgram(newProgressModel(h, maxAttempts))
	if _, err := p.Run(); err != nil {
		h.Cancel()
		<-h.Done()
		return h.Result(), fmt.Errorf("progress UI error: %w", err)
	}

	<-h.Done()
	return h.Result(), nil
}
