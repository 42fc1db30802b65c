package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/brand-discovery/internal/model"
)

var (
	uploadFile      string
	uploadOverwrite bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <domain>",
	Short: "Upload scraped pages for a domain to R2",
	Long:  "Reads a JSON array of scraped pages from --file (or stdin) and uploads each as a frontmatter markdown object under brands/<domain>/content/.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "upload")
		if err != nil {
			return err
		}
		defer env.Close()

		var data []byte
		if uploadFile != "" {
			data, err = os.ReadFile(uploadFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", uploadFile)
			}
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return eris.Wrap(err, "read stdin")
			}
		}

		var pages []model.ScrapedPage
		if err := json.Unmarshal(data, &pages); err != nil {
			return eris.Wrap(err, "parse pages")
		}
		if len(pages) == 0 {
			return eris.New("no pages to upload")
		}

		result, err := env.Uploader.UploadPages(ctx, args[0], pages, uploadOverwrite)
		if err != nil {
			return eris.Wrap(err, "upload pages")
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFile, "file", "f", "", "JSON file of scraped pages (default stdin)")
	uploadCmd.Flags().BoolVar(&uploadOverwrite, "overwrite", false, "re-upload pages that already exist in R2")
	rootCmd.AddCommand(uploadCmd)
}
