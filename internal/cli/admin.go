package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"aitrader/internal/app"
	"aitrader/internal/market"
	"aitrader/internal/permission"
)

var (
	permitAccount   string
	permitCoin      string
	permitMode      string
	permitDaily     string
	permitSingleMax string
	permitBudget    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

var permitCmd = &cobra.Command{
	Use:   "permit",
	Short: "Grant or change an account's trading permission for a coin",
	RunE: func(cmd *cobra.Command, args []string) error {
		coin, err := market.ParseCoin(permitCoin)
		if err != nil {
			return fmt.Errorf("invalid --coin value: %w", err)
		}
		opts := app.PermitOptions{
			AccountID: permitAccount,
			Coin:      coin,
			Mode:      permission.Mode(permitMode),
		}
		if opts.DailyLimit, err = parseDecimalFlag("daily-limit", permitDaily); err != nil {
			return err
		}
		if opts.SingleOrderMax, err = parseDecimalFlag("single-order-max", permitSingleMax); err != nil {
			return err
		}
		if opts.PositionBudget, err = parseDecimalFlag("position-budget", permitBudget); err != nil {
			return err
		}
		return getApp().Permit(cmd.Context(), opts)
	},
}

func init() {
	permitCmd.Flags().StringVar(&permitAccount, "account", "", "Account id")
	permitCmd.Flags().StringVar(&permitCoin, "coin", "", "Coin symbol")
	permitCmd.Flags().StringVar(&permitMode, "mode", string(permission.ModeObserve), "observe, notify_only, auto_buy, auto_sell or auto_both")
	permitCmd.Flags().StringVar(&permitDaily, "daily-limit", "0", "Daily volume limit")
	permitCmd.Flags().StringVar(&permitSingleMax, "single-order-max", "0", "Largest single order")
	permitCmd.Flags().StringVar(&permitBudget, "position-budget", "0", "Position budget used to size orders")
	_ = permitCmd.MarkFlagRequired("account")
	_ = permitCmd.MarkFlagRequired("coin")
}

func parseDecimalFlag(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return d, nil
}
