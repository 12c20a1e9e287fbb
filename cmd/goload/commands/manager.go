package commands

import (
	"github.com/spf13/cobra"

	goload "github.com/teranos/goload"
	"github.com/teranos/goload/config"
	"github.com/teranos/goload/examples/website"
	"github.com/teranos/goload/report"
)

// ManagerCmd starts the manager side of a distributed ("gaggle") load
// test: it listens for worker connections, splits cfg.Users across them,
// and merges the metrics deltas they report.
var ManagerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Coordinate a distributed load test across worker processes",
	Long: `manager listens for --expect-workers worker connections, splits the
configured --users population across them, and merges their reported
metrics into a single running report until the run ends.`,
	RunE: runManager,
}

func init() {
	flags := ManagerCmd.Flags()
	flags.Int("users", config.Default().Users, "total virtual users to split across all workers")
	flags.Float64("hatch-rate", config.Default().HatchRate, "users to hatch per second, per worker")
	flags.Duration("run-time", config.Default().RunTime, "stop after this long (0 = run until interrupted)")
	flags.Int("throttle-requests", config.Default().ThrottleRequests, "cap aggregate requests/second per worker (0 = unthrottled)")
	flags.String("host", "", "base URL workers issue requests against, unless a worker overrides it locally")
	flags.String("manager-bind-host", config.Default().ManagerBindHost, "address the manager listens on")
	flags.Int("manager-bind-port", config.Default().ManagerBindPort, "port the manager listens on")
	flags.Int("expect-workers", 0, "number of worker connections to wait for before starting")
	flags.Bool("no-hash-check", false, "accept workers whose scenario set doesn't match this manager's")
}

func runManager(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	cfg.Manager = true
	cfg.Worker = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := gracefulContext()
	defer cancel()

	sc := website.Scenario(cfg)
	rpt, err := goload.Run(ctx, cfg, sc)
	if err != nil {
		return err
	}

	if report.ShouldOutputJSON(cmd) {
		return report.OutputJSON(report.Summarize(rpt))
	}
	return report.RenderTable(rpt)
}
