package book

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order: bids buy, asks sell.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderKind distinguishes participant-priced orders from orders priced at
// the best available opposing price on acceptance.
type OrderKind string

const (
	Limit  OrderKind = "limit"
	Market OrderKind = "market"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	Pending         OrderStatus = "pending"
	PartiallyFilled OrderStatus = "partially_filled"
	Executed        OrderStatus = "executed"
	Cancelled       OrderStatus = "cancelled"
)

// TriggerKind selects which way a risk exit guards: stop-loss limits loss,
// take-profit locks in gain.
type TriggerKind string

const (
	StopLoss   TriggerKind = "stop_loss"
	TakeProfit TriggerKind = "take_profit"
)

// RiskExit is a price threshold that converts a resting order or an open
// position into an immediate closing market order once crossed.
type RiskExit struct {
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Kind         TriggerKind     `json:"triggerKind"`
}

// ValidFor reports whether the trigger price sits on the correct side of the
// order price. A stop-loss on a bid must sit below the bid price, a
// take-profit above it; asks invert both relations.
func (re RiskExit) ValidFor(side Side, price decimal.Decimal) bool {
	long := side == Bid
	switch re.Kind {
	case StopLoss:
		if long {
			return re.TriggerPrice.LessThan(price)
		}
		return re.TriggerPrice.GreaterThan(price)
	case TakeProfit:
		if long {
			return re.TriggerPrice.GreaterThan(price)
		}
		return re.TriggerPrice.LessThan(price)
	}
	return false
}

// Fires reports whether a trade at price crosses the threshold. long is true
// for bid-side orders and long positions; shorts invert the comparisons.
func (re RiskExit) Fires(long bool, price decimal.Decimal) bool {
	switch re.Kind {
	case StopLoss:
		if long {
			return price.LessThanOrEqual(re.TriggerPrice)
		}
		return price.GreaterThanOrEqual(re.TriggerPrice)
	case TakeProfit:
		if long {
			return price.GreaterThanOrEqual(re.TriggerPrice)
		}
		return price.LessThanOrEqual(re.TriggerPrice)
	}
	return false
}

// Order is a single unit of buy or sell interest. While resting in the book
// RemainingQty is positive; RequestedQty == ExecutedQty + RemainingQty holds
// at all times.
type Order struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participantId"`
	Side          Side            `json:"side"`
	Kind          OrderKind       `json:"orderType"`
	RequestedQty  int64           `json:"qty"`
	RemainingQty  int64           `json:"remainingQty"`
	ExecutedQty   int64           `json:"executedQty"`
	Price         decimal.Decimal `json:"price"`
	RiskExit      *RiskExit       `json:"riskExit,omitempty"`
	Status        OrderStatus     `json:"status"`
	RiskTriggered bool            `json:"riskTriggered,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Fill consumes qty from the order's remainder and moves its status to
// PartiallyFilled or Executed. Overfilling an order is a programming error.
func (o *Order) Fill(qty int64) {
	if qty <= 0 || qty > o.RemainingQty {
		panic(fmt.Sprintf("order %s: fill qty %d with remaining %d", o.ID, qty, o.RemainingQty))
	}
	o.RemainingQty -= qty
	o.ExecutedQty += qty
	if o.RemainingQty == 0 {
		o.Status = Executed
	} else {
		o.Status = PartiallyFilled
	}
}

// Terminal reports whether the order can no longer rest or be amended.
func (o *Order) Terminal() bool {
	return o.Status == Executed || o.Status == Cancelled
}

// Clone returns a deep copy safe to hand outside the single-writer boundary.
func (o *Order) Clone() *Order {
	cp := *o
	if o.RiskExit != nil {
		re := *o.RiskExit
		cp.RiskExit = &re
	}
	return &cp
}
