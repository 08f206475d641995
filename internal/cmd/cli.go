// Package cmd is the Cobra command tree: serve the ingestion/detection
// service, or generate a starter configuration file.
package cmd

import (
	"fmt"
	"os"

	"candlecore/internal/runapp"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "candlewatch",
	Short: "Multi-venue kline ingestion and anomaly detection service",
	Long: `candlewatch polls candlestick data across crypto and equity venues,
keeps a rolling per-instrument history, evaluates each user's configured
anomaly filters against every newly closed candle, and serves the results
over a small HTTP/JSON query facade.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion, detection, and query facade",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runapp.Run(configPath)
	},
}

var genConfigCmd = &cobra.Command{
	Use:   "genconfig [path]",
	Short: "Write a starter configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.ini"
		if len(args) == 1 {
			path = args[0]
		}
		if err := runapp.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Printf("wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.ini", "Path to the INI configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(genConfigCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
