// Package execution splits orders into paced batches and drives each batch
// through placement, retry and the order lifecycle.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aitrader/internal/clock"
	"aitrader/internal/market"
)

// Params describe one logical order.
type Params struct {
	AccountID      string
	Coin           market.Coin
	Side           market.Action
	Size           decimal.Decimal
	Price          *decimal.Decimal
	RiskLevel      market.RiskLevel
	AnalysisID     string
	MaxSlippagePct float64
	BatchCount     int
	BatchInterval  time.Duration
}

// OrderResult is the outcome of one batch.
type OrderResult struct {
	ClientOrderID   string          `json:"cl_ord_id"`
	ExchangeOrderID string          `json:"order_id,omitempty"`
	BatchIndex      int             `json:"batch_index"`
	Size            decimal.Decimal `json:"size"`
	Status          Status          `json:"status"`
	FilledSize      decimal.Decimal `json:"filled_size"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	Attempts        int             `json:"attempts"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	History         []StatusChange  `json:"history"`
}

// BatchResult aggregates every batch of one order.
type BatchResult struct {
	Results     []OrderResult   `json:"results"`
	TotalFilled decimal.Decimal `json:"total_filled"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Success     bool            `json:"success"`

	// Committed is the volume the exchange took on: reported fills, plus the
	// full size of accepted batches that came back without a fill report.
	Committed decimal.Decimal `json:"committed"`
}

// Recorder observes terminal batch outcomes.
type Recorder interface {
	ObserveOrder(coin market.Coin, status string)
}

// EngineOptions tune an Engine.
type EngineOptions struct {
	Retry    RetryOptions
	Recorder Recorder
}

// Engine owns the order lifecycle.
type Engine struct {
	exchange Exchange
	store    OrderStore
	retrier  *Retrier
	clock    clock.Clock
	recorder Recorder
	logger   zerolog.Logger
}

// NewEngine wires the placement primitive, the order store and the clock.
func NewEngine(exchange Exchange, store OrderStore, clk clock.Clock, opts EngineOptions, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	logger = logger.With().Str("component", "execution").Logger()
	return &Engine{
		exchange: exchange,
		store:    store,
		retrier:  NewRetrier(opts.Retry, clk, logger),
		clock:    clk,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// ExecuteOrder runs the batches sequentially. Batch i is placed no earlier
// than start + i × interval. Failures are reported per batch through status
// and error message; the call itself never fails. Caller cancellation does not
// interrupt an order once started.
func (e *Engine) ExecuteOrder(ctx context.Context, p Params) BatchResult {
	ctx = context.WithoutCancel(ctx)
	batches := BuildBatches(p.Size, p.BatchCount, p.BatchInterval)
	start := e.clock.Now()

	results := make([]OrderResult, 0, len(batches))
	for _, b := range batches {
		if wait := start.Add(b.Delay).Sub(e.clock.Now()); wait > 0 {
			if err := e.clock.Sleep(ctx, wait); err != nil {
				e.logger.Warn().Err(err).Int("batch", b.Index).Msg("batch delay interrupted")
			}
		}
		results = append(results, e.executeBatch(ctx, p, b))
	}

	return aggregate(results)
}

func (e *Engine) executeBatch(ctx context.Context, p Params, b Batch) OrderResult {
	clOrdID := NewClientOrderID(p.AccountID, p.Coin, e.clock.Now())
	log := e.logger.With().
		Str("cl_ord_id", clOrdID).
		Str("account_id", p.AccountID).
		Str("coin", string(p.Coin)).
		Int("batch", b.Index).
		Int("total_batches", b.Total).
		Logger()
	sm := NewStateMachine(clOrdID, e.clock.Now, log)

	order := Order{
		ClientOrderID: clOrdID,
		AccountID:     p.AccountID,
		Coin:          p.Coin,
		Side:          p.Side,
		Size:          b.Size,
		Status:        StatusPending,
		RiskLevel:     p.RiskLevel,
		AnalysisID:    p.AnalysisID,
		BatchIndex:    b.Index,
		TotalBatches:  b.Total,
		CreatedAt:     e.clock.Now(),
		UpdatedAt:     e.clock.Now(),
	}
	res := OrderResult{ClientOrderID: clOrdID, BatchIndex: b.Index, Size: b.Size}

	if err := e.store.InsertOrder(ctx, order); err != nil {
		log.Error().Err(err).Msg("persist pending order")
		return e.fail(ctx, sm, &order, res, fmt.Sprintf("persist pending order: %v", err), log)
	}

	sm.Transition(StatusSubmitted)
	e.persist(ctx, sm, &order, log)

	req := PlaceRequest{
		InstID:  p.Coin.InstID(),
		TdMode:  "cash",
		Side:    string(p.Side),
		OrdType: "market",
		Size:    b.Size.String(),
		ClOrdID: clOrdID,
	}
	if p.Price != nil {
		req.OrdType = "limit"
		req.Price = p.Price.String()
	}

	var resp PlaceResponse
	attempts := 0
	err := e.retrier.Do(ctx, "order_"+clOrdID, func(ctx context.Context) error {
		attempts++
		var placeErr error
		resp, placeErr = e.exchange.PlaceOrder(ctx, req)
		return placeErr
	})
	res.Attempts = attempts
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Msg("order failed")
		return e.fail(ctx, sm, &order, res, err.Error(), log)
	}

	sm.Transition(StatusAccepted)
	order.ExchangeOrderID = resp.OrderID
	res.ExchangeOrderID = resp.OrderID

	if resp.FilledSize.IsPositive() {
		order.FilledSize = resp.FilledSize
		order.AvgPrice = resp.AvgPrice
		if resp.FilledSize.GreaterThanOrEqual(b.Size) {
			sm.Transition(StatusFilled)
		} else {
			sm.Transition(StatusPartialFill)
		}
	}
	e.persist(ctx, sm, &order, log)

	log.Info().
		Str("order_id", resp.OrderID).
		Str("status", string(sm.Current())).
		Str("size", b.Size.String()).
		Msg("order placed")

	res.Status = sm.Current()
	res.FilledSize = order.FilledSize
	res.AvgPrice = order.AvgPrice
	res.History = sm.History()
	e.observe(p.Coin, res.Status)
	return res
}

func (e *Engine) fail(ctx context.Context, sm *StateMachine, order *Order, res OrderResult, msg string, log zerolog.Logger) OrderResult {
	sm.Transition(StatusFailed)
	order.ErrorMessage = msg
	e.persist(ctx, sm, order, log)

	res.Status = sm.Current()
	res.ErrorMessage = msg
	res.History = sm.History()
	e.observe(order.Coin, res.Status)
	return res
}

// persist writes the machine's current state. Write errors are logged only;
// the in-memory lifecycle stays authoritative for this call.
func (e *Engine) persist(ctx context.Context, sm *StateMachine, order *Order, log zerolog.Logger) {
	order.Status = sm.Current()
	order.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateOrder(ctx, *order); err != nil {
		log.Error().Err(err).Str("status", string(order.Status)).Msg("persist order state")
	}
}

func (e *Engine) observe(coin market.Coin, status Status) {
	if e.recorder != nil {
		e.recorder.ObserveOrder(coin, string(status))
	}
}

// aggregate: success when any batch was accepted or better; fill totals and the
// size-weighted average price cover filled batches only.
func aggregate(results []OrderResult) BatchResult {
	out := BatchResult{Results: results, TotalFilled: decimal.Zero, AvgPrice: decimal.Zero, Committed: decimal.Zero}
	notional := decimal.Zero
	for _, r := range results {
		switch r.Status {
		case StatusAccepted, StatusPartialFill, StatusFilled:
			out.Success = true
			if !r.FilledSize.IsPositive() {
				out.Committed = out.Committed.Add(r.Size)
			}
		}
		if r.FilledSize.IsPositive() {
			out.TotalFilled = out.TotalFilled.Add(r.FilledSize)
			out.Committed = out.Committed.Add(r.FilledSize)
			notional = notional.Add(r.FilledSize.Mul(r.AvgPrice))
		}
	}
	if out.TotalFilled.IsPositive() {
		out.AvgPrice = notional.DivRound(out.TotalFilled, sizeScale)
	}
	return out
}
