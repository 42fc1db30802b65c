package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cleanupPrefix string
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [domain]",
	Short: "Delete uploaded brand content from R2",
	Long:  "Deletes objects under brands/<domain>/ (or an explicit --prefix). Use --dry-run to list what would be removed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		prefix := cleanupPrefix
		if prefix == "" {
			if len(args) == 0 {
				return eris.New("a domain argument or --prefix is required")
			}
			prefix = fmt.Sprintf("brands/%s/", args[0])
		}

		env, err := initEnv(ctx, "cleanup")
		if err != nil {
			return err
		}
		defer env.Close()

		keys, err := env.Bucket.List(ctx, prefix)
		if err != nil {
			return eris.Wrapf(err, "list %s", prefix)
		}

		if cleanupDryRun {
			for _, k := range keys {
				fmt.Println(k)
			}
			zap.L().Info("dry run", zap.String("prefix", prefix), zap.Int("matched", len(keys)))
			return nil
		}

		deleted, err := env.Bucket.Delete(ctx, keys)
		if err != nil {
			return eris.Wrapf(err, "delete under %s", prefix)
		}

		zap.L().Info("cleanup complete", zap.String("prefix", prefix), zap.Int("deleted", deleted))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupPrefix, "prefix", "", "object key prefix to delete (overrides domain)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list matching keys without deleting")
	rootCmd.AddCommand(cleanupCmd)
}
