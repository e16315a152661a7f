package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/spf13/cobra"

	"github.com/zduanx/jobtrawl/internal/common"
)

var (
	configPath string
	config     *common.Config
	logger     arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "jobtrawl",
	Short: "Job posting ingestion pipeline",
	Long:  "jobtrawl crawls company career pages, detects changed postings via content fingerprinting, and extracts structured job data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = common.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = common.SetupLogger(config)
		common.PrintBanner(config, logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "jobtrawl.toml", "configuration file path")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
