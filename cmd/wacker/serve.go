package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <path>",
		Short: "Serve an HTTP wasm component proxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}
			id, err := cl.Serve(ctx, args[0], addr)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address to bind the HTTP listener to")
	return cmd
}
