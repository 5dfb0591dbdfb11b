package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/pressbridge/pressbridge/internal/client"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live health dashboard for an organization",
	Long: `Stream per-site sync health over a websocket and render it live.

Example:
  pressbridge watch --org acme`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// healthMsg carries one snapshot from the stream.
type healthMsg client.HealthUpdate

// streamClosedMsg is sent when the websocket terminates.
type streamClosedMsg struct {
	err error
}

// watchModel is the bubbletea model for the live health view.
type watchModel struct {
	updates  <-chan client.HealthUpdate
	errCh    <-chan error
	cancel   context.CancelFunc
	spinner  spinner.Model
	theme    Theme
	latest   *client.HealthUpdate
	err      error
	quitting bool
}

func newWatchModel(updates <-chan client.HealthUpdate, errCh <-chan error, cancel context.CancelFunc) watchModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return watchModel{
		updates: updates,
		errCh:   errCh,
		cancel:  cancel,
		spinner: sp,
		theme:   defaultTheme,
	}
}

// Init starts the spinner and the first channel receive.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdate(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case healthMsg:
		u := client.HealthUpdate(msg)
		m.latest = &u
		return m, m.waitForUpdate()

	case streamClosedMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("Stopped watching.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Stream closed: %s\n", m.err))
	}
	if m.latest == nil {
		return fmt.Sprintf("%s Waiting for first snapshot...\n", m.spinner.View())
	}

	out := m.theme.infoStyle().Render(fmt.Sprintf("Sync health for %s", m.latest.OrgID)) +
		m.theme.hintStyle().Render(fmt.Sprintf("  (as of %s)\n\n", m.latest.At.Format(time.Kitchen)))
	out += fmt.Sprintf("%-20s %-10s %8s %8s %8s %10s\n",
		"SITE", "STATUS", "PULL", "PUSH", "LAG(S)", "CONFLICTS")
	for _, s := range m.latest.Sites {
		out += fmt.Sprintf("%-20s %-10s %7.0f%% %7.0f%% %8.1f %10d\n",
			s.SiteID,
			m.theme.renderStatus(s.Status),
			s.PullSuccessRate*100,
			s.PushSuccessRate*100,
			s.LagSeconds,
			s.OpenConflicts)
	}
	out += m.theme.hintStyle().Render("\nPress q to quit")
	return out
}

// waitForUpdate blocks on the stream channel in a command goroutine so
// Update() never blocks.
func (m watchModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return streamClosedMsg{err: <-m.errCh}
		}
		return healthMsg(u)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan client.HealthUpdate)
	errCh := make(chan error, 1)
	go func() {
		errCh <- apiClient.WatchHealth(ctx, orgID, updates)
	}()

	model := newWatchModel(updates, errCh, cancel)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}
	if m, ok := finalModel.(watchModel); ok && m.err != nil && !m.quitting {
		return m.err
	}
	return nil
}
