package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass over brands stuck in extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Reconciler.Tick(ctx); err != nil {
			return eris.Wrap(err, "reconcile brands")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
