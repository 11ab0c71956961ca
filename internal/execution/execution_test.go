package execution

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/clock"
	"aitrader/internal/market"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestBuildBatchesScenarioC(t *testing.T) {
	batches := BuildBatches(decimal.NewFromInt(3000), 3, 10*time.Second)
	require.Len(t, batches, 3)

	sum := decimal.Zero
	var delays []int64
	for _, b := range batches {
		sum = sum.Add(b.Size)
		delays = append(delays, b.Delay.Milliseconds())
		assert.Equal(t, 3, b.Total)
	}
	assert.Equal(t, []int64{0, 10000, 20000}, delays)
	assert.True(t, sum.Equal(decimal.NewFromInt(3000)))
}

func TestBuildBatchesSumAndCap(t *testing.T) {
	sizes := []string{"1000", "0.00000007", "12345.6789", "1", "99999999.99999999"}
	for _, raw := range sizes {
		total := decimal.RequireFromString(raw)
		for count := 0; count <= 8; count++ {
			batches := BuildBatches(total, count, time.Second)

			want := count
			if want > MaxBatches {
				want = MaxBatches
			}
			if want < 1 {
				want = 1
			}
			require.Len(t, batches, want, "size %s count %d", raw, count)

			sum := decimal.Zero
			for i, b := range batches {
				sum = sum.Add(b.Size)
				if i < len(batches)-1 {
					assert.True(t, b.Size.Equal(batches[0].Size))
				}
			}
			assert.True(t, sum.Equal(total), "size %s count %d sum %s", raw, count, sum)
		}
	}
}

func TestStateMachineTable(t *testing.T) {
	all := []Status{StatusPending, StatusSubmitted, StatusAccepted, StatusPartialFill, StatusFilled, StatusCancelled, StatusFailed}
	allowed := map[Status][]Status{
		StatusPending:     {StatusSubmitted, StatusFailed, StatusCancelled},
		StatusSubmitted:   {StatusAccepted, StatusFailed, StatusCancelled},
		StatusAccepted:    {StatusPartialFill, StatusFilled, StatusCancelled, StatusFailed},
		StatusPartialFill: {StatusFilled, StatusCancelled, StatusFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	sm := NewStateMachine("abc", func() time.Time { return t0 }, zerolog.Nop())

	assert.False(t, sm.Transition(StatusFilled))
	assert.Equal(t, StatusPending, sm.Current())

	require.True(t, sm.Transition(StatusSubmitted))
	require.True(t, sm.Transition(StatusAccepted))
	require.True(t, sm.Transition(StatusFilled))
	assert.True(t, sm.IsTerminal())

	for _, next := range []Status{StatusPending, StatusSubmitted, StatusCancelled, StatusFailed, StatusPartialFill} {
		assert.False(t, sm.Transition(next))
		assert.Equal(t, StatusFilled, sm.Current())
	}

	history := sm.History()
	require.Len(t, history, 4)
	assert.Equal(t, StatusPending, history[0].Status)
	assert.Equal(t, StatusFilled, history[3].Status)
}

type codedErr struct{ code string }

func (e codedErr) Error() string       { return "network error " + e.code }
func (e codedErr) NetworkCode() string { return e.code }

type statusErr struct {
	status int
	msg    string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) HTTPStatus() int { return e.status }

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"econnreset code", codedErr{"ECONNRESET"}, true},
		{"unknown code", codedErr{"EPIPE"}, false},
		{"syscall reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"syscall refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "www.okx.com"}, true},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"http 429", statusErr{429, "too many requests"}, true},
		{"http 503", statusErr{503, "unavailable"}, true},
		{"http 400", statusErr{400, "bad request"}, false},
		{"insufficient balance", statusErr{503, "okx: insufficient-balance"}, false},
		{"okx 51008", errors.New("okx error code 51008: order failed"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify(tc.err)
			require.NotNil(t, ce)
			assert.Equal(t, tc.retryable, ce.Retryable, ce.Reason)
			assert.ErrorIs(t, ce, tc.err)
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestRetrierAttemptCounts(t *testing.T) {
	ctx := context.Background()

	t.Run("non-retryable stops after one attempt", func(t *testing.T) {
		clk := clock.NewFake(t0)
		r := NewRetrier(RetryOptions{}, clk, zerolog.Nop())
		calls := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			calls++
			return errors.New("invalid-param: sz")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("retryable stops at max attempts", func(t *testing.T) {
		clk := clock.NewFake(t0)
		r := NewRetrier(RetryOptions{}, clk, zerolog.Nop())
		calls := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			calls++
			return codedErr{"ETIMEDOUT"}
		})
		var ce *ClassifiedError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, ce.Attempts)
		assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clk.Sleeps())
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		clk := clock.NewFake(t0)
		r := NewRetrier(RetryOptions{MaxAttempts: 5}, clk, zerolog.Nop())
		calls := 0
		err := r.Do(ctx, "op", func(context.Context) error {
			calls++
			if calls < 4 {
				return statusErr{502, "bad gateway"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, clk.Sleeps())
	})
}

var clOrdIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,32}$`)

func TestNewClientOrderID(t *testing.T) {
	id := NewClientOrderID("acct-0001-long-name", market.BTC, t0)
	assert.Regexp(t, clOrdIDPattern, id)
	assert.Len(t, id, 32)
	assert.Contains(t, id, "acct0001BTC")
	assert.NotEqual(t, id, NewClientOrderID("acct-0001-long-name", market.BTC, t0))

	// a longer symbol shortens the account prefix, never the tail
	long := NewClientOrderID("acct-0001-long-name", market.Coin("DOGE"), t0)
	assert.Regexp(t, clOrdIDPattern, long)
	assert.Len(t, long, 32)
	ms := strconv.FormatInt(t0.UnixMilli(), 10)
	assert.True(t, strings.HasPrefix(long, "acct000DOGE"+ms), long)

	short := NewClientOrderID("a", market.ETH, t0)
	assert.True(t, strings.HasPrefix(short, "aETH"+ms), short)
	assert.Len(t, short, 1+3+len(ms)+8)
}

type placement struct {
	at  time.Time
	req PlaceRequest
}

type fakeExchange struct {
	clk    *clock.Fake
	calls  []placement
	script func(call int, req PlaceRequest) (PlaceResponse, error)
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req PlaceRequest) (PlaceResponse, error) {
	f.calls = append(f.calls, placement{at: f.clk.Now(), req: req})
	if f.script != nil {
		return f.script(len(f.calls), req)
	}
	return PlaceResponse{OrderID: fmt.Sprintf("ord-%d", len(f.calls)), ClOrdID: req.ClOrdID}, nil
}

func TestExecuteOrderPacesBatches(t *testing.T) {
	clk := clock.NewFake(t0)
	ex := &fakeExchange{clk: clk}
	store := NewMemoryOrders()
	engine := NewEngine(ex, store, clk, EngineOptions{}, zerolog.Nop())

	res := engine.ExecuteOrder(context.Background(), Params{
		AccountID:     "acct-1",
		Coin:          market.ETH,
		Side:          market.Buy,
		Size:          decimal.NewFromInt(3000),
		RiskLevel:     market.P0,
		AnalysisID:    "an-1",
		BatchCount:    3,
		BatchInterval: 10 * time.Second,
	})

	require.True(t, res.Success)
	require.Len(t, ex.calls, 3)
	for i, call := range ex.calls {
		assert.Equal(t, t0.Add(time.Duration(i)*10*time.Second), call.at)
		assert.Equal(t, "ETH-USDT", call.req.InstID)
		assert.Equal(t, "cash", call.req.TdMode)
		assert.Equal(t, "market", call.req.OrdType)
		assert.Equal(t, "buy", call.req.Side)
	}

	orders := store.Orders()
	require.Len(t, orders, 3)
	sum := decimal.Zero
	for i, o := range orders {
		assert.Equal(t, StatusAccepted, o.Status)
		assert.Equal(t, i, o.BatchIndex)
		assert.Equal(t, "an-1", o.AnalysisID)
		assert.Equal(t, fmt.Sprintf("ord-%d", i+1), o.ExchangeOrderID)
		sum = sum.Add(o.Size)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(3000)))
	assert.True(t, res.TotalFilled.IsZero())
	assert.True(t, res.Committed.Equal(decimal.NewFromInt(3000)), "acknowledged batches count at full size")
}

func TestAggregateCommittedMixesFillsAndAcks(t *testing.T) {
	res := aggregate([]OrderResult{
		{Size: decimal.NewFromInt(4), Status: StatusFilled, FilledSize: decimal.NewFromInt(4), AvgPrice: decimal.NewFromInt(100)},
		{Size: decimal.NewFromInt(4), Status: StatusPartialFill, FilledSize: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(110)},
		{Size: decimal.NewFromInt(4), Status: StatusAccepted},
		{Size: decimal.NewFromInt(4), Status: StatusFailed},
	})
	assert.True(t, res.Success)
	assert.True(t, res.TotalFilled.Equal(decimal.NewFromInt(5)))
	assert.True(t, res.Committed.Equal(decimal.NewFromInt(9)), "got %s", res.Committed)
	assert.True(t, res.AvgPrice.Equal(decimal.NewFromInt(102)), "got %s", res.AvgPrice)
}

func TestExecuteOrderRetryKeepsClientOrderID(t *testing.T) {
	clk := clock.NewFake(t0)
	ex := &fakeExchange{clk: clk}
	ex.script = func(call int, req PlaceRequest) (PlaceResponse, error) {
		if call < 3 {
			return PlaceResponse{}, statusErr{503, "service unavailable"}
		}
		return PlaceResponse{OrderID: "ord-x", FilledSize: decimal.RequireFromString(req.Size), AvgPrice: decimal.NewFromInt(100)}, nil
	}
	engine := NewEngine(ex, NewMemoryOrders(), clk, EngineOptions{}, zerolog.Nop())

	res := engine.ExecuteOrder(context.Background(), Params{
		AccountID:  "acct-1",
		Coin:       market.BTC,
		Side:       market.Sell,
		Size:       decimal.NewFromInt(500),
		BatchCount: 1,
	})

	require.Len(t, ex.calls, 3)
	assert.Equal(t, ex.calls[0].req.ClOrdID, ex.calls[1].req.ClOrdID)
	assert.Equal(t, ex.calls[0].req.ClOrdID, ex.calls[2].req.ClOrdID)

	require.Len(t, res.Results, 1)
	r := res.Results[0]
	assert.Equal(t, StatusFilled, r.Status)
	assert.Equal(t, 3, r.Attempts)
	assert.True(t, res.Success)
	assert.True(t, res.TotalFilled.Equal(decimal.NewFromInt(500)))
	assert.True(t, res.AvgPrice.Equal(decimal.NewFromInt(100)))

	var statuses []Status
	for _, h := range r.History {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []Status{StatusPending, StatusSubmitted, StatusAccepted, StatusFilled}, statuses)
}

func TestExecuteOrderFailedBatchDoesNotStopOthers(t *testing.T) {
	clk := clock.NewFake(t0)
	ex := &fakeExchange{clk: clk}
	ex.script = func(call int, req PlaceRequest) (PlaceResponse, error) {
		if call == 1 {
			return PlaceResponse{}, errors.New("okx error code 51008: insufficient-balance")
		}
		return PlaceResponse{OrderID: "ok"}, nil
	}
	store := NewMemoryOrders()
	engine := NewEngine(ex, store, clk, EngineOptions{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := engine.ExecuteOrder(ctx, Params{
		AccountID:     "acct-2",
		Coin:          market.SOL,
		Side:          market.Buy,
		Size:          decimal.NewFromInt(100),
		BatchCount:    2,
		BatchInterval: 30 * time.Second,
	})

	require.Len(t, res.Results, 2)
	assert.Equal(t, StatusFailed, res.Results[0].Status)
	assert.Equal(t, 1, res.Results[0].Attempts)
	assert.Contains(t, res.Results[0].ErrorMessage, "insufficient-balance")
	assert.Equal(t, StatusAccepted, res.Results[1].Status)
	assert.True(t, res.Success)

	orders := store.Orders()
	assert.Equal(t, StatusFailed, orders[0].Status)
	assert.Contains(t, orders[0].ErrorMessage, "51008")
}

func TestExecuteOrderAllFailed(t *testing.T) {
	clk := clock.NewFake(t0)
	ex := &fakeExchange{clk: clk, script: func(int, PlaceRequest) (PlaceResponse, error) {
		return PlaceResponse{}, codedErr{"ECONNREFUSED"}
	}}
	engine := NewEngine(ex, NewMemoryOrders(), clk, EngineOptions{}, zerolog.Nop())

	res := engine.ExecuteOrder(context.Background(), Params{
		AccountID:  "acct-3",
		Coin:       market.BTC,
		Side:       market.Buy,
		Size:       decimal.NewFromInt(10),
		BatchCount: 9,
	})

	assert.False(t, res.Success)
	assert.Len(t, res.Results, MaxBatches)
	assert.Len(t, ex.calls, MaxBatches*3)
	for _, r := range res.Results {
		assert.Equal(t, StatusFailed, r.Status)
	}
}
