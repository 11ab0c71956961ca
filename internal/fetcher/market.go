package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aitrader/internal/health"
	"aitrader/internal/market"
)

const (
	summaryPath = "/summary/"
	healthPath  = "/health"
)

// MarketOptions parameterise the market data client.
type MarketOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Market fetches snapshots and health dimensions from the data layer's HTTP API.
type Market struct {
	opts    MarketOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewMarket constructs a market fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Market{
		opts:    opts,
		logger:  logger.With().Str("component", "market_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FetchSnapshot retrieves GET {base}/summary/{coin}.
func (m *Market) FetchSnapshot(ctx context.Context, coin market.Coin) (market.Snapshot, error) {
	var snap market.Snapshot
	if err := m.getJSON(ctx, summaryPath+url.PathEscape(string(coin)), &snap); err != nil {
		return market.Snapshot{}, fmt.Errorf("fetch %s snapshot: %w", coin, err)
	}

	if snap.Summary.Coin == "" {
		snap.Summary.Coin = coin
	}
	if snap.Summary.Coin != coin {
		return market.Snapshot{}, fmt.Errorf("snapshot coin mismatch: want %s, got %s", coin, snap.Summary.Coin)
	}
	if snap.Summary.CurrentPrice <= 0 {
		return market.Snapshot{}, fmt.Errorf("snapshot for %s has no price", coin)
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = m.now()
	}

	m.logger.Debug().
		Str("coin", string(coin)).
		Float64("price", snap.Summary.CurrentPrice).
		Float64("whale_score", snap.Summary.WhaleScore).
		Msg("snapshot fetched")
	return snap, nil
}

// FetchHealth retrieves GET {base}/health.
func (m *Market) FetchHealth(ctx context.Context) (health.Dimensions, error) {
	var dims health.Dimensions
	if err := m.getJSON(ctx, healthPath, &dims); err != nil {
		return health.Dimensions{}, fmt.Errorf("fetch health: %w", err)
	}
	return dims, nil
}

func (m *Market) getJSON(ctx context.Context, path string, out any) error {
	if m.baseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "aitrader/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("market api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("market api error (%d)", status)
}

var _ Source = (*Market)(nil)
