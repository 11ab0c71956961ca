package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "debug", Format: "json"}, "aitrader", &buf)
	logger.Debug().Str("coin", "BTC").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志应为 JSON / log line is not JSON: %v", err)
	}
	if entry["app"] != "aitrader" || entry["coin"] != "BTC" || entry["level"] != "debug" {
		t.Fatalf("字段缺失 / missing fields: %v", entry)
	}
}

func TestNewLoggerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, "", &buf)
	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info 应被过滤 / info should be filtered: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":       zerolog.InfoLevel,
		"DEBUG":  zerolog.DebugLevel,
		" warn ": zerolog.WarnLevel,
		"bogus":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}
