package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wacker-dev/wackerd/client"
	"github.com/wacker-dev/wackerd/paths"
)

var sockFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wacker",
		Short:         "Control a running wackerd daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&sockFlag, "sock", "", "override the daemon socket path (default $HOME/.wacker/wacker.sock)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newListCmd(),
		newStopCmd(),
		newRestartCmd(),
		newDeleteCmd(),
		newLogsCmd(),
	)
	return root
}

func dialClient(ctx context.Context) (*client.Client, error) {
	sock := sockFlag
	if sock == "" {
		layout, err := paths.Default()
		if err != nil {
			return nil, fmt.Errorf("resolve default socket path: %w", err)
		}
		sock = layout.SockPath
	}
	return client.Dial(ctx, sock)
}
