package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arlobrandt/pltgot/internal/registry"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live-tail installed hooks in a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newWatchModel(interval))
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	return cmd
}

type hookItem struct {
	title, desc string
}

func (i hookItem) Title() string       { return i.title }
func (i hookItem) Description() string { return i.desc }
func (i hookItem) FilterValue() string { return i.title }

var (
	watchTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				Padding(0, 1)
	watchHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type tickMsg time.Time
type hooksMsg []registry.Hook

type watchModel struct {
	list     list.Model
	interval time.Duration
}

func newWatchModel(interval time.Duration) watchModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "pltgotctl — installed hooks"
	l.Styles.Title = watchTitleStyle
	return watchModel{list: l, interval: interval}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(refreshCmd(), tickEvery(m.interval))
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return hooksMsg(sharedManager().List())
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		return m, tea.Batch(refreshCmd(), tickEvery(m.interval))

	case hooksMsg:
		items := make([]list.Item, len(msg))
		for i, h := range msg {
			items[i] = hookItem{
				title: fmt.Sprintf("%s (%s)", h.Symbol, h.Pattern),
				desc:  fmt.Sprintf("%s  0x%x -> 0x%x  %s", h.Path, h.OldAddr, h.NewAddr, h.InstalledAt),
			}
		}
		m.list.SetItems(items)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	help := watchHelpStyle.Render("q/ctrl+c: quit")
	return m.list.View() + "\n" + help
}
