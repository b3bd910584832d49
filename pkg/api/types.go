package api

// Wire types for WebSocket sessions and the REST reporting surface.

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
	"github.com/HarshJ2508/order-execution-sys/pkg/engine"
	"github.com/HarshJ2508/order-execution-sys/pkg/ledger"
)

// SessionHello is the first message a session receives: its participant id.
type SessionHello struct {
	ID string `json:"id"`
}

// Ack is the per-command response delivered only to the originating session.
type Ack struct {
	Type string `json:"type"` // "ack"
	*engine.Result
}

// ErrorMessage is the rejection response for a failed command.
type ErrorMessage struct {
	Type      string    `json:"type"` // "error"
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// BookMessage is broadcast to every session after each state change.
type BookMessage struct {
	Type           string           `json:"type"` // "book"
	Bids           []*book.Order    `json:"bids"`
	Asks           []*book.Order    `json:"asks"`
	LastTradePrice *decimal.Decimal `json:"lastTradePrice,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// TradeMessage is broadcast once per executed trade.
type TradeMessage struct {
	Type          string          `json:"type"` // "trade"
	Trade         ledger.Trade    `json:"trade"`
	Bids          []*book.Order   `json:"bids"`
	Asks          []*book.Order   `json:"asks"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	RiskTriggered bool            `json:"riskTriggered"`
	Timestamp     time.Time       `json:"timestamp"`
}

// ErrorResponse is returned by REST handlers on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
