package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <ids...>",
		Aliases: []string{"rm"},
		Short:   "Delete one or more programs",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cl, err := dialClient(ctx)
			if err != nil {
				return err
			}
			return cl.Delete(ctx, args)
		},
	}
}
