package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

var discoverWait bool

var discoverCmd = &cobra.Command{
	Use:   "discover <domain>",
	Short: "Kick off brand discovery for a domain",
	Long:  "Starts brand field extraction and the URL mapping/scraping pipeline for a domain. With --wait, polls the extract job until it finishes and applies the result instead of leaving it to the reconciler.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.Discover(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "discover brand")
		}

		if discoverWait && res.ExtractJobID != "" {
			zap.L().Info("waiting for extract job", zap.String("job_id", res.ExtractJobID))
			status, err := firecrawl.PollExtract(ctx, env.Firecrawl, res.ExtractJobID)
			if err != nil {
				if failErr := env.Orchestrator.FailExtraction(ctx, res.Brand.ID, err.Error()); failErr != nil {
					zap.L().Error("recording extract failure", zap.Error(failErr))
				}
				return eris.Wrap(err, "poll extract job")
			}

			fields, err := model.DecodeExtractedFields(status.Data)
			if err != nil {
				return eris.Wrap(err, "decode extracted fields")
			}
			if err := env.Orchestrator.ApplyExtraction(ctx, res.Brand.ID, fields); err != nil {
				return eris.Wrap(err, "apply extraction")
			}
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverWait, "wait", false, "wait for the extract job and apply the result")
	rootCmd.AddCommand(discoverCmd)
}
