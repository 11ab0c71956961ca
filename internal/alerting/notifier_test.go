package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aitrader/internal/market"
)

func signalNote() Notification {
	return Notification{
		Kind:       KindTradeSignal,
		At:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Coin:       market.BTC,
		AnalysisID: "an-1",
		Action:     market.Buy,
		Confidence: 0.87,
		RiskLevel:  market.P1,
		Consensus:  "majority",
		Votes:      map[string]market.Action{"AI-2": market.Buy, "AI-1": market.Buy, "AI-3": market.Hold},
		Urgent:     true,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	var received sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), signalNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received.ChatID != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received.Text == "" {
		t.Fatalf("text 应非空")
	}
	if received.DisableNotification {
		t.Fatalf("紧急通知不应静默")
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), signalNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), signalNote()); err == nil {
		t.Fatal("HTTP 429 应报错")
	}
}

func TestRenderTradeSignal(t *testing.T) {
	text := Render(signalNote())
	for _, want := range []string{
		"[AI Trader] BTC signal: BUY",
		"Confidence: 87.0%",
		"Risk: P1  Consensus: majority",
		"Votes: AI-1=buy AI-2=buy AI-3=hold",
		"Analysis: an-1",
		"Time: 2025-03-01T12:00:00Z UTC",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Whale override") {
		t.Fatalf("未触发巨鲸覆盖时不应显示")
	}
}

func TestRenderExecutionAndModeChange(t *testing.T) {
	exec := Render(Notification{
		Kind:       KindExecution,
		Coin:       market.ETH,
		Action:     market.Sell,
		AccountID:  "acct-1",
		OrderSize:  decimal.RequireFromString("0.3"),
		FilledSize: decimal.RequireFromString("0.3"),
		AvgPrice:   decimal.RequireFromString("3100.456"),
		RiskLevel:  market.P0,
	})
	if !strings.Contains(exec, "SELL ETH executed") || !strings.Contains(exec, "Filled: 0.3 @ 3100.46") {
		t.Fatalf("成交消息格式错误:\n%s", exec)
	}

	mode := Render(Notification{Kind: KindModeChange, PrevMode: "active", NextMode: "emergency", HealthScore: 42})
	if !strings.Contains(mode, "Mode: active -> emergency") || !strings.Contains(mode, "Health score: 42") {
		t.Fatalf("模式切换消息格式错误:\n%s", mode)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(testLogger()).Notify(context.Background(), signalNote()); err != nil {
		t.Fatalf("日志通知不应失败: %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
