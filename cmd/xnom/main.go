package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xnom/internal/logging"
	"xnom/internal/theme"
)

var (
	// Global flags
	configPath string
	logLevel   string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "xnom",
	Short: "X notification dashboard and auto-engagement agent",
	Long: `xnom watches your X mentions, scores them by priority, pushes the ones
that matter to connected dashboards and Telegram, and runs a budgeted
auto-engagement loop over popular tweets.

Run "xnom init" to write a starter config, then "xnom serve".`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !quiet {
			theme.PrintBanner(cmd.OutOrStdout())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./xnom.yaml", "Path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Skip the banner")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(engageCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ideasCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
