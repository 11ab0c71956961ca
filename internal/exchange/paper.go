package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"aitrader/internal/execution"
	"aitrader/internal/market"
)

// PriceFunc returns the reference price used for paper fills.
type PriceFunc func(coin market.Coin) (decimal.Decimal, bool)

// Paper fills every order immediately at the reference price. Repeated
// client order ids return the original acknowledgement.
type Paper struct {
	mu     sync.Mutex
	prices PriceFunc
	seq    int
	acks   map[string]execution.PlaceResponse
}

// NewPaper constructs a paper exchange. prices may be nil.
func NewPaper(prices PriceFunc) *Paper {
	return &Paper{prices: prices, acks: make(map[string]execution.PlaceResponse)}
}

// PlaceOrder records a fill for req.
func (p *Paper) PlaceOrder(_ context.Context, req execution.PlaceRequest) (execution.PlaceResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ack, ok := p.acks[req.ClOrdID]; ok {
		return ack, nil
	}

	size, err := decimal.NewFromString(req.Size)
	if err != nil || !size.IsPositive() {
		return execution.PlaceResponse{}, fmt.Errorf("paper: invalid-param sz %q", req.Size)
	}

	price := decimal.Zero
	if req.Price != "" {
		if px, perr := decimal.NewFromString(req.Price); perr == nil {
			price = px
		}
	}
	if price.IsZero() && p.prices != nil {
		if coin, cerr := market.ParseCoin(strings.TrimSuffix(req.InstID, "-USDT")); cerr == nil {
			if px, ok := p.prices(coin); ok {
				price = px
			}
		}
	}

	p.seq++
	ack := execution.PlaceResponse{
		OrderID:    fmt.Sprintf("paper-%d", p.seq),
		ClOrdID:    req.ClOrdID,
		FilledSize: size,
		AvgPrice:   price,
	}
	p.acks[req.ClOrdID] = ack
	return ack, nil
}

var _ execution.Exchange = (*Paper)(nil)
