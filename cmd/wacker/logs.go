package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wacker-dev/wackerd/rpcproto"
)

func newLogsCmd() *cobra.Command {
	var follow bool
	var tail uint32
	cmd := &cobra.Command{
		Use:     "logs <id>",
		Aliases: []string{"log"},
		Short:   "Show (optionally follow) a program's captured output",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}
			ch, err := cl.Logs(ctx, args[0], follow, tail)
			if err != nil {
				return err
			}

			if follow && term.IsTerminal(int(os.Stdout.Fd())) {
				_, err := tea.NewProgram(newLogsModel(ch), tea.WithAltScreen()).Run()
				return err
			}

			for chunk := range ch {
				fmt.Print(chunk.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new output as it is written")
	cmd.Flags().Uint32VarP(&tail, "tail", "n", 0, "only show the last N lines (0 = entire file)")
	return cmd
}

type logsChunkMsg rpcproto.LogChunk

type logsClosedMsg struct{}

// logsModel scrolls captured output through a viewport so a long-running
// follow doesn't blow past the terminal height; new content keeps the
// view pinned to the bottom unless the user has scrolled up.
type logsModel struct {
	ch       <-chan rpcproto.LogChunk
	content  string
	vp       viewport.Model
	ready    bool
	atBottom bool
}

func newLogsModel(ch <-chan rpcproto.LogChunk) *logsModel {
	return &logsModel{ch: ch, atBottom: true}
}

func (m *logsModel) Init() tea.Cmd {
	return m.waitForChunk()
}

func (m *logsModel) waitForChunk() tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-m.ch
		if !ok {
			return logsClosedMsg{}
		}
		return logsChunkMsg(chunk)
	}
}

func (m *logsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerHeight)
			m.vp.SetContent(m.content)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerHeight
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		m.atBottom = m.vp.AtBottom()
		return m, cmd
	case logsChunkMsg:
		m.content += msg.Content
		if m.ready {
			m.vp.SetContent(m.content)
			if m.atBottom {
				m.vp.GotoBottom()
			}
		}
		return m, m.waitForChunk()
	case logsClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *logsModel) View() string {
	if !m.ready {
		return "loading...\n"
	}
	return helpStyle.Render("(↑/↓ to scroll, q to quit)") + "\n" + m.vp.View()
}
