package cmd

import (
	"fmt"
	"io"

	commandbuiltin "rtmbot/pkg/command/builtin"
	"rtmbot/pkg/config"
	webhookbuiltin "rtmbot/pkg/webhook/builtin"

	"github.com/spf13/cobra"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the built-in commands and webhooks",
	Long:  "Lists the built-in commands and webhooks. When a config file is found, disabled entries are marked.",
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			cfg = &config.Config{}
		}
		printBuiltins(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}

func printBuiltins(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Commands:")
	for _, h := range commandbuiltin.Defaults() {
		fmt.Fprintf(w, "  %s%s\n", h.Name(), disabledMark(cfg.CommandEnabled(h.Name())))
	}

	fmt.Fprintln(w, "Webhooks:")
	for _, h := range webhookbuiltin.Defaults() {
		fmt.Fprintf(w, "  %s%s\n", h.Name(), disabledMark(cfg.WebhookEnabled(h.Name())))
	}
}

func disabledMark(enabled bool) string {
	if enabled {
		return ""
	}
	return " (disabled)"
}
