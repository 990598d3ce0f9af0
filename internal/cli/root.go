package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/KaveeDilshan/PapilioNet/internal/app"
	"github.com/KaveeDilshan/PapilioNet/internal/config"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "papilionet",
		Short: "Butterfly species classification service",
		Long: `PapilioNet classifies butterfly photographs into known species using an
ONNX image classifier, rejects low-confidence images, and records user
corrections for later retraining.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "papilio.yaml", "Path to YAML config file")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newClassifyCmd(&configPath, app.ONNXFactory))
	cmd.AddCommand(newFeedbackCmd(&configPath))

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	app.SetupLogging(os.Stderr, cfg.Logging)
	return cfg, nil
}
