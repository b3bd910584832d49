package book

import (
	"errors"
	"sort"
)

// ErrNotFound is returned when an operation targets an order id that is not
// resting in the book.
var ErrNotFound = errors.New("order not found")

// OrderBook holds the resting interest for a single instrument: bids sorted
// by price descending, asks by price ascending, arrival order breaking ties.
// It enforces at most one resting order per participant per side.
//
// The book has no internal locking: it is owned exclusively by the engine's
// single writer and never hands out references to its own orders.
type OrderBook struct {
	bids []*Order
	asks []*Order
}

func New() *OrderBook {
	return &OrderBook{}
}

func (ob *OrderBook) side(s Side) *[]*Order {
	if s == Bid {
		return &ob.bids
	}
	return &ob.asks
}

// Upsert inserts an order, replacing any order the same participant already
// has resting on that side, then restores the side's price ordering. The
// replaced order, if any, is returned with Cancelled status.
func (ob *OrderBook) Upsert(o *Order) *Order {
	var replaced *Order
	orders := ob.side(o.Side)
	for i, resting := range *orders {
		if resting.ParticipantID == o.ParticipantID {
			resting.Status = Cancelled
			replaced = resting
			*orders = append((*orders)[:i], (*orders)[i+1:]...)
			break
		}
	}
	*orders = append(*orders, o)
	ob.sortSide(o.Side)
	return replaced
}

// Resort restores price ordering after an in-place price amendment.
func (ob *OrderBook) Resort(s Side) {
	ob.sortSide(s)
}

func (ob *OrderBook) sortSide(s Side) {
	orders := *ob.side(s)
	if s == Bid {
		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].Price.GreaterThan(orders[j].Price)
		})
	} else {
		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].Price.LessThan(orders[j].Price)
		})
	}
}

// Remove takes a specific order out of the book.
func (ob *OrderBook) Remove(orderID string) error {
	for _, s := range []Side{Bid, Ask} {
		orders := ob.side(s)
		for i, o := range *orders {
			if o.ID == orderID {
				*orders = append((*orders)[:i], (*orders)[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

// Find returns the resting order with the given id, or nil.
func (ob *OrderBook) Find(orderID string) *Order {
	for _, s := range []Side{Bid, Ask} {
		for _, o := range *ob.side(s) {
			if o.ID == orderID {
				return o
			}
		}
	}
	return nil
}

// BestBid returns the highest-priced resting bid, or nil when the side is empty.
func (ob *OrderBook) BestBid() *Order {
	if len(ob.bids) == 0 {
		return nil
	}
	return ob.bids[0]
}

// BestAsk returns the lowest-priced resting ask, or nil when the side is empty.
func (ob *OrderBook) BestAsk() *Order {
	if len(ob.asks) == 0 {
		return nil
	}
	return ob.asks[0]
}

// Orders returns the live slice for one side, best price first. Callers stay
// inside the writer's critical section and must not retain it.
func (ob *OrderBook) Orders(s Side) []*Order {
	return *ob.side(s)
}

// OrdersOf returns deep copies of the participant's resting orders on both sides.
func (ob *OrderBook) OrdersOf(participantID string) []*Order {
	var out []*Order
	for _, s := range []Side{Bid, Ask} {
		for _, o := range *ob.side(s) {
			if o.ParticipantID == participantID {
				out = append(out, o.Clone())
			}
		}
	}
	return out
}

// RemoveAllFor drops every resting order the participant owns. Used when a
// session disconnects. Returns the removed orders.
func (ob *OrderBook) RemoveAllFor(participantID string) []*Order {
	var removed []*Order
	for _, s := range []Side{Bid, Ask} {
		orders := ob.side(s)
		kept := (*orders)[:0]
		for _, o := range *orders {
			if o.ParticipantID == participantID {
				o.Status = Cancelled
				removed = append(removed, o)
			} else {
				kept = append(kept, o)
			}
		}
		*orders = kept
	}
	return removed
}

// BidsSnapshot returns deep copies of all resting bids, best first.
func (ob *OrderBook) BidsSnapshot() []*Order {
	return cloneAll(ob.bids)
}

// AsksSnapshot returns deep copies of all resting asks, best first.
func (ob *OrderBook) AsksSnapshot() []*Order {
	return cloneAll(ob.asks)
}

func cloneAll(orders []*Order) []*Order {
	out := make([]*Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}
