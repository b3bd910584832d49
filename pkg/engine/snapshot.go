package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
	"github.com/HarshJ2508/order-execution-sys/pkg/ledger"
	"github.com/HarshJ2508/order-execution-sys/pkg/position"
)

// TradeEvent pairs an executed trade with whether either leg came from a
// risk-exit trigger.
type TradeEvent struct {
	Trade         ledger.Trade `json:"trade"`
	RiskTriggered bool         `json:"riskTriggered"`
}

// Snapshot is the immutable state handed to the broadcaster at the end of a
// writer turn. It reflects the complete effect of one command, never a
// partial one.
type Snapshot struct {
	Bids           []*book.Order    `json:"bids"`
	Asks           []*book.Order    `json:"asks"`
	LastTradePrice *decimal.Decimal `json:"lastTradePrice,omitempty"`
	Trades         []TradeEvent     `json:"trades,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Broadcaster receives snapshots after every state-changing command. It must
// not block the caller: slow or failing subscribers never stall matching.
type Broadcaster interface {
	Publish(Snapshot)
}

// NopBroadcaster discards snapshots. Used in tests and in headless setups.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Snapshot) {}

// Stats is the aggregate market view served by the reporting surface.
type Stats struct {
	BestBid        *decimal.Decimal `json:"bestBid,omitempty"`
	BestAsk        *decimal.Decimal `json:"bestAsk,omitempty"`
	LastTradePrice *decimal.Decimal `json:"lastTradePrice,omitempty"`
	Volume24h      int64            `json:"volume24h"`
	TradeCount     int              `json:"tradeCount"`
	OpenOrders     int              `json:"openOrders"`
}

// Result is the direct acknowledgment for one command, delivered only to the
// originating session.
type Result struct {
	Message        string              `json:"message,omitempty"`
	OrderID        string              `json:"orderId,omitempty"`
	Order          *book.Order         `json:"order,omitempty"`
	Orders         []*book.Order       `json:"orders,omitempty"`
	Positions      []position.Position `json:"positions,omitempty"`
	Trades         []ledger.Trade      `json:"trades,omitempty"`
	Bids           []*book.Order       `json:"bids,omitempty"`
	Asks           []*book.Order       `json:"asks,omitempty"`
	LastTradePrice *decimal.Decimal    `json:"lastTradePrice,omitempty"`
	Stats          *Stats              `json:"stats,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}
