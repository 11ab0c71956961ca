package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aitrader/internal/market"
)

// Kind 区分通知类型。
type Kind string

const (
	KindTradeSignal Kind = "trade_signal"
	KindExecution   Kind = "execution"
	KindModeChange  Kind = "mode_change"
)

// Notification 封装一次通知的上下文。
type Notification struct {
	Kind          Kind
	At            time.Time
	Coin          market.Coin
	AnalysisID    string
	Action        market.Action
	Confidence    float64
	RiskLevel     market.RiskLevel
	Consensus     string
	WhaleOverride bool
	Votes         map[string]market.Action
	AccountID     string
	OrderSize     decimal.Decimal
	FilledSize    decimal.Decimal
	AvgPrice      decimal.Decimal
	PrevMode      string
	NextMode      string
	HealthScore   float64
	// Urgent 为 false 时以静默方式推送。
	Urgent        bool
	AdditionalMsg string
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:              n.chatID,
		Text:                Render(note),
		DisableNotification: !note.Urgent,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("kind", string(note.Kind)).
		Str("coin", string(note.Coin)).
		Bool("urgent", note.Urgent).
		Msg("通知已发送 (Telegram)")
	return nil
}

// LogNotifier 仅写日志，用于未启用 Telegram 或模拟运行。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志通知器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("kind", string(note.Kind)).
		Str("coin", string(note.Coin)).
		Str("text", Render(note)).
		Msg("notification")
	return nil
}

// Render 生成纯文本消息。
func Render(note Notification) string {
	b := strings.Builder{}
	switch note.Kind {
	case KindModeChange:
		b.WriteString("[AI Trader] System mode changed\n")
		b.WriteString(fmt.Sprintf("Mode: %s -> %s\n", note.PrevMode, note.NextMode))
		b.WriteString(fmt.Sprintf("Health score: %.0f\n", note.HealthScore))
	case KindExecution:
		b.WriteString(fmt.Sprintf("[AI Trader] %s %s executed\n", strings.ToUpper(string(note.Action)), note.Coin))
		b.WriteString(fmt.Sprintf("Account: %s\n", note.AccountID))
		b.WriteString(fmt.Sprintf("Requested: %s\n", note.OrderSize.String()))
		b.WriteString(fmt.Sprintf("Filled: %s @ %s\n", note.FilledSize.String(), note.AvgPrice.StringFixed(2)))
		b.WriteString(fmt.Sprintf("Risk: %s\n", note.RiskLevel))
	default:
		b.WriteString(fmt.Sprintf("[AI Trader] %s signal: %s\n", note.Coin, strings.ToUpper(string(note.Action))))
		b.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", note.Confidence*100))
		b.WriteString(fmt.Sprintf("Risk: %s  Consensus: %s\n", note.RiskLevel, note.Consensus))
		if note.WhaleOverride {
			b.WriteString("Whale override: yes\n")
		}
		if len(note.Votes) > 0 {
			b.WriteString("Votes: " + renderVotes(note.Votes) + "\n")
		}
	}
	if note.AnalysisID != "" {
		b.WriteString(fmt.Sprintf("Analysis: %s\n", note.AnalysisID))
	}
	if !note.At.IsZero() {
		b.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	if note.AdditionalMsg != "" {
		b.WriteString(note.AdditionalMsg)
	}
	return b.String()
}

func renderVotes(votes map[string]market.Action) string {
	ids := make([]string, 0, len(votes))
	for id := range votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+"="+string(votes[id]))
	}
	return strings.Join(parts, " ")
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
