package execution

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aitrader/internal/market"
)

// maxClOrdIDLen is the exchange limit on client order ids.
const maxClOrdIDLen = 32

// Order is the persisted record of one batch.
type Order struct {
	ID              int64
	ClientOrderID   string
	ExchangeOrderID string
	AccountID       string
	Coin            market.Coin
	Side            market.Action
	Size            decimal.Decimal
	FilledSize      decimal.Decimal
	AvgPrice        decimal.Decimal
	Status          Status
	RiskLevel       market.RiskLevel
	AnalysisID      string
	BatchIndex      int
	TotalBatches    int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderStore persists order rows keyed by client order id.
type OrderStore interface {
	InsertOrder(ctx context.Context, order Order) error
	UpdateOrder(ctx context.Context, order Order) error
}

// PlaceRequest is the exchange placement payload.
type PlaceRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Size    string `json:"sz"`
	Price   string `json:"px,omitempty"`
	ClOrdID string `json:"clOrdId"`
}

// PlaceResponse is what the exchange reports for an accepted order. Fill
// fields are zero when the venue only acknowledges.
type PlaceResponse struct {
	OrderID    string
	ClOrdID    string
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
}

// Exchange places orders. Placing twice with the same ClOrdID must be safe.
type Exchange interface {
	PlaceOrder(ctx context.Context, req PlaceRequest) (PlaceResponse, error)
}

// NewClientOrderID builds an idempotency key from the account prefix, coin,
// unix milliseconds and a random nonce. Only [A-Za-z0-9] is emitted.
func NewClientOrderID(accountID string, coin market.Coin, now time.Time) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ms := strconv.FormatInt(now.UnixMilli(), 10)

	// the account prefix shrinks first; the coin is cut only when it alone overflows
	sym := alnum(string(coin))
	if room := maxClOrdIDLen - len(ms) - len(nonce); len(sym) > room {
		sym = sym[:room]
	}
	prefix := alnum(accountID)
	room := maxClOrdIDLen - len(sym) - len(ms) - len(nonce)
	if room > 8 {
		room = 8
	}
	if len(prefix) > room {
		prefix = prefix[:room]
	}
	return prefix + sym + ms + nonce
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
