package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wacker-dev/wackerd/rpcproto"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

func styledStatus(s uint32) string {
	name := statusName(s)
	switch s {
	case 0:
		return runningStyle.Render(name)
	case 2:
		return errorStyle.Render(name)
	default:
		return name
	}
}

func newListCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ps"},
		Short:   "List every program the daemon knows about",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}

			if watch && term.IsTerminal(int(os.Stdout.Fd())) {
				_, err := tea.NewProgram(newWatchModel(ctx, cl)).Run()
				return err
			}

			progs, err := cl.List(ctx)
			if err != nil {
				return err
			}
			printPrograms(os.Stdout, progs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh the list every second (TUI, requires a terminal)")
	return cmd
}

func printPrograms(w *os.File, progs []rpcproto.Program) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tADDR\tPATH")
	for _, p := range progs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, programTypeName(p.ProgramType), statusName(p.Status), p.Addr, p.Path)
	}
	tw.Flush()
}

func programTypeName(t uint32) string {
	switch t {
	case 0:
		return "CLI"
	case 1:
		return "HTTP"
	default:
		return "unknown"
	}
}

func statusName(s uint32) string {
	switch s {
	case 0:
		return "Running"
	case 1:
		return "Finished"
	case 2:
		return "Error"
	case 3:
		return "Stopped"
	default:
		return "unknown"
	}
}

type watchTickMsg time.Time

type watchModel struct {
	ctx   context.Context
	cl    interface {
		List(ctx context.Context) ([]rpcproto.Program, error)
	}
	progs []rpcproto.Program
	err   error
}

func newWatchModel(ctx context.Context, cl interface {
	List(ctx context.Context) ([]rpcproto.Program, error)
}) *watchModel {
	return &watchModel{ctx: ctx, cl: cl}
}

func (m *watchModel) Init() tea.Cmd {
	return m.refresh()
}

func (m *watchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		progs, err := m.cl.List(m.ctx)
		return watchResultMsg{progs: progs, err: err}
	}
}

type watchResultMsg struct {
	progs []rpcproto.Program
	err   error
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case watchTickMsg:
		return m, func() tea.Msg {
			progs, err := m.cl.List(m.ctx)
			return watchResultMsg{progs: progs, err: err}
		}
	case watchResultMsg:
		m.progs = msg.progs
		m.err = msg.err
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return watchTickMsg(t) })
	}
	return m, nil
}

func (m *watchModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n" + helpStyle.Render("(press q to quit)") + "\n"
	}
	s := headerStyle.Render("ID\tTYPE\tSTATUS\tADDR\tPATH") + "\n"
	for _, p := range m.progs {
		s += fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n", p.ID, programTypeName(p.ProgramType), styledStatus(p.Status), p.Addr, p.Path)
	}
	s += "\n" + helpStyle.Render("(press q to quit)") + "\n"
	return s
}
