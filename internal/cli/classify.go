package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaveeDilshan/PapilioNet/internal/app"
	"github.com/KaveeDilshan/PapilioNet/internal/handlers"
	"github.com/KaveeDilshan/PapilioNet/internal/pipeline"
)

func newClassifyCmd(configPath *string, newScorer app.ScorerFactory) *cobra.Command {
	var topN int

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify local images and print the results as JSON",
		Example: `  papilionet classify wing.jpg
  papilionet classify --top-n 5 samples/*.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if topN == 0 {
				topN = cfg.Classifier.DefaultTopN
			}

			a, err := app.New(cfg, newScorer)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.StartupError(); err != nil {
				return err
			}

			files := make([]pipeline.File, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, pipeline.File{Filename: filepath.Base(path), Data: data})
			}

			results, err := a.Pipeline.ClassifyBatch(cmd.Context(), files, topN)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handlers.RenderResults(results, cfg.Classifier.RejectionMessage))
		},
	}

	cmd.Flags().IntVarP(&topN, "top-n", "n", 0, "Number of similar species to list (default from config)")

	return cmd
}
