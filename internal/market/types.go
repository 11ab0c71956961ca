package market

import (
	"fmt"
	"strings"
)

// Coin is a tradable spot asset quoted against USDT.
type Coin string

const (
	BTC Coin = "BTC"
	ETH Coin = "ETH"
	SOL Coin = "SOL"
)

// SupportedCoins lists the coins the pipeline knows how to trade.
var SupportedCoins = []Coin{BTC, ETH, SOL}

var coinNames = map[Coin]string{
	BTC: "Bitcoin",
	ETH: "Ethereum",
	SOL: "Solana",
}

// InstID returns the exchange instrument id, e.g. BTC-USDT.
func (c Coin) InstID() string {
	return string(c) + "-USDT"
}

// Name returns the human readable coin name.
func (c Coin) Name() string {
	if name, ok := coinNames[c]; ok {
		return name
	}
	return string(c)
}

// ParseCoin validates a coin symbol.
func ParseCoin(v string) (Coin, error) {
	coin := Coin(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := coinNames[coin]; !ok {
		return "", fmt.Errorf("unsupported coin %q", v)
	}
	return coin, nil
}

// Action is a trade direction voted by a model or decided by arbitration.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
	Hold Action = "hold"
)

// Valid reports whether the action is one of buy/sell/hold.
func (a Action) Valid() bool {
	switch a {
	case Buy, Sell, Hold:
		return true
	}
	return false
}

// RiskLevel is the severity tier. P0 is the most severe.
type RiskLevel string

const (
	P0 RiskLevel = "P0"
	P1 RiskLevel = "P1"
	P2 RiskLevel = "P2"
)

// Valid reports whether the level is one of P0/P1/P2.
func (r RiskLevel) Valid() bool {
	switch r {
	case P0, P1, P2:
		return true
	}
	return false
}

func (r RiskLevel) rank() int {
	switch r {
	case P0:
		return 0
	case P1:
		return 1
	default:
		return 2
	}
}

// MoreSevere returns the more severe of two levels.
func MoreSevere(a, b RiskLevel) RiskLevel {
	if !a.Valid() {
		a = P2
	}
	if !b.Valid() {
		b = P2
	}
	if b.rank() < a.rank() {
		return b
	}
	return a
}
