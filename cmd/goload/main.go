package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/goload/cmd/goload/commands"
	"github.com/teranos/goload/logger"
)

var rootCmd = &cobra.Command{
	Use:   "goload",
	Short: "goload - a distributed HTTP load-testing engine",
	Long: `goload drives scenarios of weighted transactions against a target
through a configurable population of virtual users, with an optional
manager/worker mode for running a single load test across multiple
processes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLog, _ := cmd.Flags().GetBool("log-json")
		return logger.Initialize(jsonLog, logger.LevelFromVerbosity(verbosity))
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase output verbosity (-v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON logs instead of themed console output")
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON results instead of a rendered report")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ManagerCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
