package main

import (
	"github.com/spf13/cobra"

	"github.com/edgard/assistbots/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "assistbots",
		Short: "Run Telegram bots backed by remote assistants",
		Long: "assistbots starts one Telegram bot per (token, assistant) pair, polls them\n" +
			"concurrently and stops them together on SIGINT or SIGTERM.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Path to a dotenv file loaded before configuration")

	cmd.AddCommand(newVersionCmd())

	return cmd
}
