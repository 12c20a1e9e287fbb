package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/goload/report"
	"github.com/teranos/goload/version"
)

// VersionCmd prints build information for the goload binary.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show goload version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()

		if report.ShouldOutputJSON(cmd) {
			return report.OutputJSON(info)
		}

		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}
