package main

import (
	"github.com/spf13/cobra"

	"github.com/user/pingcheck/internal/tui"
)

var uiFlags targetFlags

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the live scan view",
	Long: `Launch an interactive terminal view that probes the loaded targets
and shows one row per result as it arrives.

Keys: 's' start, 'x' stop, '+'/'-' timeout (1-10 s), 'q' quit.`,
	RunE: runUI,
}

func init() {
	uiFlags.register(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	list, source, err := uiFlags.load()
	if err != nil {
		return err
	}

	app := tui.NewApp(newOrchestrator(), cfg, list, source, uiFlags.timeoutSeconds())
	return app.Run(cmd.Context())
}
