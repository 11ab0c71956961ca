package execution

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"aitrader/internal/clock"
)

// RetryTable lists what Classify treats as transient. Non-retryable
// substrings win over everything else.
type RetryTable struct {
	NetworkCodes           []string
	HTTPStatuses           []int
	NonRetryableSubstrings []string
}

// DefaultRetryTable returns the production table. The numeric entries are OKX
// business codes for balance and parameter rejections.
func DefaultRetryTable() RetryTable {
	return RetryTable{
		NetworkCodes:           []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED"},
		HTTPStatuses:           []int{429, 500, 502, 503, 504},
		NonRetryableSubstrings: []string{"insufficient-balance", "invalid-param", "51008", "51009", "51010"},
	}
}

// HTTPStatusError is implemented by transport errors that carry a status code.
type HTTPStatusError interface {
	HTTPStatus() int
}

// NetworkCoder is implemented by errors that carry a network error code.
type NetworkCoder interface {
	NetworkCode() string
}

// ClassifiedError wraps a failure with its retry decision.
type ClassifiedError struct {
	Err        error
	Retryable  bool
	Code       string
	HTTPStatus int
	Reason     string
	Attempts   int
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify decides once whether err is worth retrying. Business rejections
// win over transport signals; anything unrecognised is not retried.
func (t RetryTable) Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	ce := &ClassifiedError{Err: err}
	var se HTTPStatusError
	if errors.As(err, &se) {
		ce.HTTPStatus = se.HTTPStatus()
	}
	ce.Code = networkCode(err)

	msg := err.Error()
	for _, s := range t.NonRetryableSubstrings {
		if strings.Contains(msg, s) {
			ce.Reason = "business rejection " + s
			return ce
		}
	}
	for _, code := range t.NetworkCodes {
		if ce.Code != "" && ce.Code == code {
			ce.Retryable = true
			ce.Reason = "network " + code
			return ce
		}
	}
	for _, status := range t.HTTPStatuses {
		if ce.HTTPStatus == status {
			ce.Retryable = true
			ce.Reason = fmt.Sprintf("http %d", status)
			return ce
		}
	}
	ce.Reason = "unclassified"
	return ce
}

// Classify uses the default table.
func Classify(err error) *ClassifiedError {
	return DefaultRetryTable().Classify(err)
}

func networkCode(err error) string {
	var nc NetworkCoder
	if errors.As(err, &nc) {
		return nc.NetworkCode()
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	return ""
}

// RetryOptions configure a Retrier.
type RetryOptions struct {
	MaxAttempts int
	Delays      []time.Duration
	Table       *RetryTable
}

// DefaultDelays is the backoff schedule indexed by attempt.
var DefaultDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Retrier runs an operation with bounded backoff on the injected clock.
type Retrier struct {
	maxAttempts int
	delays      []time.Duration
	table       RetryTable
	clock       clock.Clock
	logger      zerolog.Logger
}

// NewRetrier applies defaults for zero options.
func NewRetrier(opts RetryOptions, clk clock.Clock, logger zerolog.Logger) *Retrier {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if len(opts.Delays) == 0 {
		opts.Delays = DefaultDelays
	}
	table := DefaultRetryTable()
	if opts.Table != nil {
		table = *opts.Table
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Retrier{
		maxAttempts: opts.MaxAttempts,
		delays:      opts.Delays,
		table:       table,
		clock:       clk,
		logger:      logger,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt cap is reached. The returned error is always a *ClassifiedError.
func (r *Retrier) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		ce := r.table.Classify(err)
		ce.Attempts = attempt + 1
		r.logger.Warn().
			Err(err).
			Str("label", label).
			Int("attempt", ce.Attempts).
			Bool("retryable", ce.Retryable).
			Str("reason", ce.Reason).
			Msg("operation failed")

		if !ce.Retryable || ce.Attempts >= r.maxAttempts {
			return ce
		}

		delay := r.delays[len(r.delays)-1]
		if attempt < len(r.delays) {
			delay = r.delays[attempt]
		}
		r.logger.Info().Str("label", label).Dur("delay", delay).Int("next_attempt", ce.Attempts+1).Msg("retrying")
		if sleepErr := r.clock.Sleep(ctx, delay); sleepErr != nil {
			ce.Reason = "interrupted: " + sleepErr.Error()
			return ce
		}
	}
}
