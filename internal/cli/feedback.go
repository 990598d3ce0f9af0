package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaveeDilshan/PapilioNet/internal/feedback"
)

func newFeedbackCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Inspect recorded species corrections",
	}
	cmd.AddCommand(newFeedbackExportCmd(configPath))
	return cmd
}

func newFeedbackExportCmd(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored feedback to Parquet or CSV",
		Long: `Reads every stored correction from the configured feedback backend and
writes it to --out. The format follows the file extension: .parquet or .csv.`,
		Example: `  papilionet feedback export --out corrections.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			write := feedback.WriteCSV
			switch strings.ToLower(filepath.Ext(out)) {
			case ".parquet":
				write = feedback.WriteParquet
			case ".csv":
			default:
				return fmt.Errorf("unsupported export format %q (want .parquet or .csv)", filepath.Ext(out))
			}

			store, err := feedback.Open(cfg.Feedback.Backend, cfg.Feedback.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := write(f, records); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			slog.Info("Feedback exported", "records", len(records), "out", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (.parquet or .csv)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
