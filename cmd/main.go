package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hugojosefson/polymer/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "polybuild",
	Short: "Build orchestrator for JavaScript libraries",
	Long: `This command runs the tasks declared in tasks.star files and bundles the tools they use.
This includes a manifest resolver and cross-platform replacements for mv, rm and mkdir.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "minimum level of messages to print (debug, info, warn or error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "print log messages as JSON")

	rootCmd.AddCommand(cmd.RootCmd)
}

func Execute() {
	err := rootCmd.Execute()
	if eris.Is(err, cmd.ErrReported) {
		os.Exit(1)
	}
	cobra.CheckErr(err)
}
