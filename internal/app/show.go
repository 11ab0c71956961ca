package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"aitrader/internal/audit"
	"aitrader/internal/execution"
)

// ShowOptions configure the orders command.
type ShowOptions struct {
	Limit      int
	AnalysisID string
	Out        io.Writer
}

// AuditOptions configure the audit command.
type AuditOptions struct {
	Filter audit.Filter
	Out    io.Writer
}

func writerOr(out io.Writer) io.Writer {
	if out == nil {
		return os.Stdout
	}
	return out
}

// ShowOrders prints recent order batches, or the batches of one decision.
func (a *App) ShowOrders(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var orders []execution.Order
	if opts.AnalysisID != "" {
		orders, err = store.ListOrdersByAnalysis(ctx, opts.AnalysisID)
	} else {
		orders, err = store.ListRecentOrders(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}

	out := writerOr(opts.Out)
	if len(orders) == 0 {
		fmt.Fprintln(out, "no orders found")
		return nil
	}
	renderOrders(out, orders)
	return nil
}

func renderOrders(out io.Writer, orders []execution.Order) {
	table := tablewriter.NewWriter(out)
	table.Header("Time (UTC)", "Account", "Coin", "Side", "Batch", "Size", "Filled", "Avg Price", "Status", "Risk", "Error")
	for _, o := range orders {
		table.Append(
			o.CreatedAt.UTC().Format(time.RFC3339),
			o.AccountID,
			string(o.Coin),
			string(o.Side),
			fmt.Sprintf("%d/%d", o.BatchIndex+1, o.TotalBatches),
			o.Size.String(),
			o.FilledSize.String(),
			o.AvgPrice.StringFixed(2),
			string(o.Status),
			string(o.RiskLevel),
			sanitizeInline(o.ErrorMessage),
		)
	}
	table.Render()
}

// ShowStats prints order counts by status since the given time.
func (a *App) ShowStats(ctx context.Context, since time.Time, out io.Writer) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.OrderStats(ctx, since)
	if err != nil {
		return err
	}

	out = writerOr(out)
	fmt.Fprintf(out, "orders since %s\n", since.UTC().Format(time.RFC3339))
	table := tablewriter.NewWriter(out)
	table.Header("Status", "Count")
	rows := []struct {
		name  string
		count int64
	}{
		{"pending", stats.Pending},
		{"submitted", stats.Submitted},
		{"accepted", stats.Accepted},
		{"partial_fill", stats.PartialFill},
		{"filled", stats.Filled},
		{"cancelled", stats.Cancelled},
		{"failed", stats.Failed},
		{"total", stats.Total},
	}
	for _, r := range rows {
		table.Append(r.name, fmt.Sprintf("%d", r.count))
	}
	table.Render()
	return nil
}

// ShowAudit prints audit entries matching the filter.
func (a *App) ShowAudit(ctx context.Context, opts AuditOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := audit.NewQueryService(store, a.Logger).Query(ctx, opts.Filter)
	if err != nil {
		return err
	}

	out := writerOr(opts.Out)
	if len(entries) == 0 {
		fmt.Fprintln(out, "no audit entries found")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Seq", "Time (UTC)", "Event", "Account", "Coin", "Order", "Analysis", "Hash")
	for _, e := range entries {
		table.Append(
			fmt.Sprintf("%d", e.SequenceNum),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.EventType),
			e.AccountID,
			string(e.Coin),
			e.OrderID,
			e.AnalysisID,
			shortHash(e.Hash),
		)
	}
	table.Render()
	return nil
}

// VerifyAudit replays the chain between two sequence numbers. A broken or
// empty range is reported as an error.
func (a *App) VerifyAudit(ctx context.Context, startSeq, endSeq int64, out io.Writer) error {
	if startSeq <= 0 || endSeq < startSeq {
		return fmt.Errorf("invalid range [%d, %d]", startSeq, endSeq)
	}
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	ok, err := audit.NewQueryService(store, a.Logger).VerifyIntegrity(ctx, startSeq, endSeq)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("audit chain [%d, %d] failed verification", startSeq, endSeq)
	}
	fmt.Fprintf(writerOr(out), "audit chain [%d, %d] verified\n", startSeq, endSeq)
	return nil
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
