// Package position tracks each participant's net exposure and evaluates the
// risk exits attached to it.
package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
)

// Position is a participant's open net exposure: positive NetQuantity is
// long, negative is short. AvgPrice is the volume-weighted entry price of
// the currently open quantity.
type Position struct {
	ParticipantID string          `json:"participantId"`
	NetQuantity   int64           `json:"netQuantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	RiskExit      *book.RiskExit  `json:"riskExit,omitempty"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Tracker holds all open positions. Owned by the engine's single writer.
type Tracker struct {
	positions map[string]*Position
}

func NewTracker() *Tracker {
	return &Tracker{positions: make(map[string]*Position)}
}

// ApplyFill folds one fill into the participant's position. side is the side
// of the participant's order: bids add exposure, asks remove it.
//
// A position only comes into existence on a fill carrying risk-exit
// metadata; once open it is updated by every fill touching the participant.
// Reaching exactly zero deletes the position; crossing zero flips it, with
// the fill price as the new entry price.
func (tr *Tracker) ApplyFill(participantID string, side book.Side, qty int64, price decimal.Decimal, re *book.RiskExit, now time.Time) {
	if qty <= 0 {
		panic(fmt.Sprintf("position %s: non-positive fill qty %d", participantID, qty))
	}
	delta := qty
	if side == book.Ask {
		delta = -qty
	}

	pos, ok := tr.positions[participantID]
	if !ok {
		if re == nil {
			return
		}
		tr.positions[participantID] = &Position{
			ParticipantID: participantID,
			NetQuantity:   delta,
			AvgPrice:      price,
			RiskExit:      cloneExit(re),
			LastUpdated:   now,
		}
		return
	}

	oldQty := pos.NetQuantity
	newQty := oldQty + delta
	switch {
	case newQty == 0:
		delete(tr.positions, participantID)
		return
	case sameDirection(oldQty, delta):
		// Fold in at the new weighted average.
		oldAbs := decimal.NewFromInt(abs(oldQty))
		fillAbs := decimal.NewFromInt(qty)
		newAbs := decimal.NewFromInt(abs(newQty))
		pos.AvgPrice = pos.AvgPrice.Mul(oldAbs).Add(price.Mul(fillAbs)).Div(newAbs)
		pos.NetQuantity = newQty
	case sameDirection(oldQty, newQty):
		// Partial reduction keeps the entry price.
		pos.NetQuantity = newQty
	default:
		// Sign reversal: the overshoot opens a fresh position at the fill price.
		pos.NetQuantity = newQty
		pos.AvgPrice = price
	}
	if re != nil {
		pos.RiskExit = cloneExit(re)
	}
	pos.LastUpdated = now
}

// Get returns a copy of the participant's position, or nil if none is open.
func (tr *Tracker) Get(participantID string) *Position {
	pos, ok := tr.positions[participantID]
	if !ok {
		return nil
	}
	cp := *pos
	cp.RiskExit = cloneExit(pos.RiskExit)
	return &cp
}

// Remove deletes the participant's position outright (disconnect cleanup).
func (tr *Tracker) Remove(participantID string) {
	delete(tr.positions, participantID)
}

// All returns copies of every open position, ordered by participant id.
func (tr *Tracker) All() []Position {
	out := make([]Position, 0, len(tr.positions))
	for _, pos := range tr.positions {
		cp := *pos
		cp.RiskExit = cloneExit(pos.RiskExit)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// FireTriggers evaluates every position's risk exit against the trade price,
// deletes the positions whose exit fired and returns them (the caller closes
// them out with synthetic market orders). Deterministic participant order.
func (tr *Tracker) FireTriggers(price decimal.Decimal) []Position {
	var fired []Position
	for _, pos := range tr.positions {
		if pos.RiskExit == nil || pos.NetQuantity == 0 {
			continue
		}
		if pos.RiskExit.Fires(pos.NetQuantity > 0, price) {
			cp := *pos
			cp.RiskExit = cloneExit(pos.RiskExit)
			fired = append(fired, cp)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i].ParticipantID < fired[j].ParticipantID })
	for _, pos := range fired {
		delete(tr.positions, pos.ParticipantID)
	}
	return fired
}

func sameDirection(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func cloneExit(re *book.RiskExit) *book.RiskExit {
	if re == nil {
		return nil
	}
	cp := *re
	return &cp
}
