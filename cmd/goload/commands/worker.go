package commands

import (
	"github.com/spf13/cobra"

	goload "github.com/teranos/goload"
	"github.com/teranos/goload/config"
	"github.com/teranos/goload/examples/website"
)

// WorkerCmd starts the worker side of a distributed load test: it dials a
// manager, waits for its allotment, and runs it, shipping metrics deltas
// back until the manager ends the run.
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker that dials a manager and runs its assigned allotment",
	Long: `worker connects to --manager-host, waits for the manager to assign it
a slice of the load test's virtual user population, and runs that slice
until the manager sends the exit command or the process is interrupted.`,
	RunE: runWorker,
}

func init() {
	flags := WorkerCmd.Flags()
	flags.String("manager-host", "", "host:port of the manager to connect to")
	flags.String("host", "", "base URL to issue requests against, overriding the manager's --host")
	flags.Duration("timeout", config.Default().Timeout, "per-request timeout")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	cfg.Worker = true
	cfg.Manager = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := gracefulContext()
	defer cancel()

	sc := website.Scenario(cfg)
	_, err = goload.Run(ctx, cfg, sc)
	return err
}
