package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <path> [args...]",
		Short: "Run a CLI wasm program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}
			id, err := cl.Run(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}
