package commands

import (
	"github.com/spf13/cobra"

	goload "github.com/teranos/goload"
	"github.com/teranos/goload/config"
	"github.com/teranos/goload/examples/website"
	"github.com/teranos/goload/report"
)

// RunCmd drives a load test in this single process: it hatches the full
// configured user population, runs it to completion, and renders the
// resulting report.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test in this process",
	Long: `run hatches the configured population of virtual users against
--host and drives them through their scenario until --run-time elapses
or the process receives an interrupt, then prints the aggregated report.`,
	RunE: runRun,
}

func init() {
	flags := RunCmd.Flags()
	flags.Int("users", config.Default().Users, "number of virtual users to hatch")
	flags.Float64("hatch-rate", config.Default().HatchRate, "users to hatch per second")
	flags.Duration("run-time", config.Default().RunTime, "stop after this long (0 = run until interrupted)")
	flags.Int("throttle-requests", config.Default().ThrottleRequests, "cap aggregate requests/second across all users (0 = unthrottled)")
	flags.String("metrics-file", "", "append a JSON-lines record of every request to this file")
	flags.Bool("only-summary", false, "suppress periodic snapshots, print only the final report")
	flags.String("host", "", "base URL the scenario issues requests against")
	flags.Duration("timeout", config.Default().Timeout, "per-request timeout")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
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
