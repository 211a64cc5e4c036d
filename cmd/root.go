package cmd

import (
	"github.com/spf13/cobra"

	"example.com/snippetquiz/services/core/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "core",
	Short: "SnippetQuiz core service",
	Long:  `Event-driven quiz generation pipeline: topic extraction, question generation and the live progress stream`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./app.env)")
}

func initConfig() {
	if cfgFile != "" {
		config.SetConfigFile(cfgFile)
	}
}
