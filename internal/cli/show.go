package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aitrader/internal/app"
	"aitrader/internal/audit"
	"aitrader/internal/market"
)

var (
	ordersLimit    int
	ordersAnalysis string

	statsSince time.Duration

	auditAccount  string
	auditCoin     string
	auditEvent    string
	auditOrder    string
	auditAnalysis string
	auditFrom     string
	auditTo       string
	auditLimit    int
	auditOffset   int

	verifyStart int64
	verifyEnd   int64
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Display recent order batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ordersLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ShowOrders(cmd.Context(), app.ShowOptions{
			Limit:      ordersLimit,
			AnalysisID: ordersAnalysis,
			Out:        cmd.OutOrStdout(),
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count orders by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsSince <= 0 {
			return fmt.Errorf("--since must be greater than zero")
		}
		return getApp().ShowStats(cmd.Context(), time.Now().UTC().Add(-statsSince), cmd.OutOrStdout())
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			AccountID:  auditAccount,
			EventType:  audit.EventType(auditEvent),
			OrderID:    auditOrder,
			AnalysisID: auditAnalysis,
			Limit:      auditLimit,
			Offset:     auditOffset,
		}
		if auditCoin != "" {
			coin, err := market.ParseCoin(auditCoin)
			if err != nil {
				return fmt.Errorf("invalid --coin value: %w", err)
			}
			filter.Coin = coin
		}
		from, err := parseTimeFlag("from", auditFrom)
		if err != nil {
			return err
		}
		if from != nil {
			filter.From = *from
		}
		to, err := parseTimeFlag("to", auditTo)
		if err != nil {
			return err
		}
		if to != nil {
			filter.To = *to
		}
		return getApp().ShowAudit(cmd.Context(), app.AuditOptions{Filter: filter, Out: cmd.OutOrStdout()})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain over a sequence range",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().VerifyAudit(cmd.Context(), verifyStart, verifyEnd, cmd.OutOrStdout())
	},
}

func init() {
	ordersCmd.Flags().IntVar(&ordersLimit, "limit", 20, "Number of orders to display")
	ordersCmd.Flags().StringVar(&ordersAnalysis, "analysis", "", "Only show batches of this analysis id")

	statsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "Look-back window")

	auditCmd.Flags().StringVar(&auditAccount, "account", "", "Filter by account id")
	auditCmd.Flags().StringVar(&auditCoin, "coin", "", "Filter by coin")
	auditCmd.Flags().StringVar(&auditEvent, "event", "", "Filter by event type")
	auditCmd.Flags().StringVar(&auditOrder, "order", "", "Filter by client order id")
	auditCmd.Flags().StringVar(&auditAnalysis, "analysis", "", "Filter by analysis id")
	auditCmd.Flags().StringVar(&auditFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	auditCmd.Flags().StringVar(&auditTo, "to", "", "End timestamp (RFC3339, exclusive)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", audit.DefaultQueryLimit, "Maximum entries")
	auditCmd.Flags().IntVar(&auditOffset, "offset", 0, "Entries to skip")

	verifyCmd.Flags().Int64Var(&verifyStart, "start", 1, "First sequence number")
	verifyCmd.Flags().Int64Var(&verifyEnd, "end", 0, "Last sequence number")
	_ = verifyCmd.MarkFlagRequired("end")
}
