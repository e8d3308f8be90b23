package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <ids...>",
		Short: "Restart one or more programs in place",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}
			return cl.Restart(ctx, args)
		},
	}
}
