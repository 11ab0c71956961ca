package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"aitrader/internal/app"
)

var (
	simulateScenario string
	simulateCoins    []string
	simulateLiveAI   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one decision cycle against a scenario file with paper fills",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateScenario == "" {
			return errors.New("--scenario is required")
		}
		coins, err := parseCoins(simulateCoins)
		if err != nil {
			return err
		}
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			ScenarioPath: simulateScenario,
			Coins:        coins,
			LiveAI:       simulateLiveAI,
			Out:          cmd.OutOrStdout(),
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScenario, "scenario", "", "Path to a JSON scenario file")
	simulateCmd.Flags().StringSliceVar(&simulateCoins, "coin", nil, "Coins to run (defaults to every snapshot in the scenario)")
	simulateCmd.Flags().BoolVar(&simulateLiveAI, "live-ai", false, "Query the configured model providers instead of the scripted votes")
}
