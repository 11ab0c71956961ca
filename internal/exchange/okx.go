// Package exchange holds order placement adapters.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"aitrader/internal/execution"
)

const placeOrderPath = "/api/v5/trade/order"

// OKXOptions parameterise the OKX REST client.
type OKXOptions struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Passphrase        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Simulated         bool
}

// OKX places spot orders through the OKX v5 REST API.
type OKX struct {
	opts    OKXOptions
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewOKX constructs the client.
func NewOKX(opts OKXOptions, logger zerolog.Logger) *OKX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.okx.com"
	}

	return &OKX{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
		now:     time.Now,
		logger:  logger.With().Str("component", "okx").Logger(),
	}
}

// APIError is a rejected request. HTTPStatus feeds retry classification.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("okx api error (%d): code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("okx api error (%d): %s", e.Status, e.Message)
}

// HTTPStatus returns the transport status code.
func (e *APIError) HTTPStatus() int { return e.Status }

// PlaceOrder submits one order. OKX deduplicates on clOrdId.
func (o *OKX) PlaceOrder(ctx context.Context, req execution.PlaceRequest) (execution.PlaceResponse, error) {
	if o.opts.APIKey == "" || o.opts.APISecret == "" {
		return execution.PlaceResponse{}, errors.New("okx credentials not configured")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return execution.PlaceResponse{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return execution.PlaceResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+placeOrderPath, bytes.NewReader(body))
	if err != nil {
		return execution.PlaceResponse{}, err
	}
	timestamp := o.now().UTC().Format("2006-01-02T15:04:05.000Z")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OK-ACCESS-KEY", o.opts.APIKey)
	httpReq.Header.Set("OK-ACCESS-SIGN", Sign(o.opts.APISecret, timestamp, http.MethodPost, placeOrderPath, string(body)))
	httpReq.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	httpReq.Header.Set("OK-ACCESS-PASSPHRASE", o.opts.Passphrase)
	if o.opts.Simulated {
		httpReq.Header.Set("x-simulated-trading", "1")
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return execution.PlaceResponse{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return execution.PlaceResponse{}, err
	}

	var envelope placeEnvelope
	if jsonErr := json.Unmarshal(payload, &envelope); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return execution.PlaceResponse{}, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
		}
		return execution.PlaceResponse{}, fmt.Errorf("decode okx response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK || envelope.Code != "0" {
		apiErr := &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Msg}
		if len(envelope.Data) > 0 && envelope.Data[0].SCode != "" && envelope.Data[0].SCode != "0" {
			apiErr.Code = envelope.Data[0].SCode
			apiErr.Message = envelope.Data[0].SMsg
		}
		return execution.PlaceResponse{}, apiErr
	}
	if len(envelope.Data) == 0 {
		return execution.PlaceResponse{}, errors.New("okx response missing order data")
	}

	ack := envelope.Data[0]
	o.logger.Debug().Str("cl_ord_id", ack.ClOrdID).Str("order_id", ack.OrdID).Msg("order acknowledged")
	return execution.PlaceResponse{OrderID: ack.OrdID, ClOrdID: ack.ClOrdID}, nil
}

// Sign computes the OK-ACCESS-SIGN header: base64(HMAC-SHA256(ts+method+path+body)).
func Sign(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type placeEnvelope struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data []placeAck `json:"data"`
}

type placeAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

var _ execution.Exchange = (*OKX)(nil)
