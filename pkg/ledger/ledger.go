// Package ledger keeps the append-only record of executed trades.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution between a buyer and a seller. Trades are immutable
// once appended; ledger order is execution order.
type Trade struct {
	ID                  string          `json:"id"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int64           `json:"quantity"`
	BuyerOrderID        string          `json:"buyerOrderId"`
	SellerOrderID       string          `json:"sellerOrderId"`
	BuyerParticipantID  string          `json:"buyerParticipantId"`
	SellerParticipantID string          `json:"sellerParticipantId"`
	Timestamp           time.Time       `json:"timestamp"`
	BuyerRiskTriggered  bool            `json:"buyerRiskTriggered,omitempty"`
	SellerRiskTriggered bool            `json:"sellerRiskTriggered,omitempty"`
}

// Ledger is the append-only trade history. Owned by the engine's single
// writer; reads hand out copies.
type Ledger struct {
	trades []Trade
}

func New() *Ledger {
	return &Ledger{}
}

// Append records a trade. Nothing is ever mutated or deleted afterwards.
func (l *Ledger) Append(t Trade) {
	l.trades = append(l.trades, t)
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int {
	return len(l.trades)
}

// Tail returns the most recent n trades in execution order. n <= 0 or
// n >= Len returns everything.
func (l *Ledger) Tail(n int) []Trade {
	if n <= 0 || n > len(l.trades) {
		n = len(l.trades)
	}
	out := make([]Trade, n)
	copy(out, l.trades[len(l.trades)-n:])
	return out
}

// ForParticipant returns every trade where the participant was buyer or seller.
func (l *Ledger) ForParticipant(participantID string) []Trade {
	var out []Trade
	for _, t := range l.trades {
		if t.BuyerParticipantID == participantID || t.SellerParticipantID == participantID {
			out = append(out, t)
		}
	}
	return out
}

// VolumeSince sums the quantity of all trades at or after the cutoff.
func (l *Ledger) VolumeSince(cutoff time.Time) int64 {
	var vol int64
	for _, t := range l.trades {
		if !t.Timestamp.Before(cutoff) {
			vol += t.Quantity
		}
	}
	return vol
}

// LastPrice returns the price of the most recent trade and whether one exists.
func (l *Ledger) LastPrice() (decimal.Decimal, bool) {
	if len(l.trades) == 0 {
		return decimal.Zero, false
	}
	return l.trades[len(l.trades)-1].Price, true
}
