package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "formweave",
	Short: "Formweave - collaborative questionnaire versioning",
	Long:  `Formweave manages questionnaire definitions under concurrent editing: operational transforms, branched version history, merges, and a change audit trail.`,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
}

func Execute() error {
	return rootCmd.Execute()
}
