package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
)

// Command is the closed set of operations the engine accepts. Each inbound
// message decodes to exactly one of these; unknown tags are rejected, never
// ignored.
type Command interface {
	isCommand()
}

// Place submits a new bid or ask for the requesting participant, replacing
// any order they already have resting on that side.
type Place struct {
	Side  book.Side
	Qty   int64
	Price *decimal.Decimal // nil for market orders
	Kind  book.OrderKind
	Exit  *book.RiskExit
}

// Cancel removes one of the requester's resting orders.
type Cancel struct {
	OrderID string
}

// Update amends a resting order's price, quantity, kind and risk exit in place.
type Update struct {
	OrderID string
	Qty     int64
	Price   *decimal.Decimal
	Kind    book.OrderKind
	Exit    *book.RiskExit
}

// GetOrders returns the requester's resting orders.
type GetOrders struct{}

// GetPositions returns the requester's open position.
type GetPositions struct{}

// GetTrades returns every trade the requester took part in.
type GetTrades struct{}

// ForceMatch re-runs the matching loop without submitting anything new.
// Operational testing hook; a settled book makes it a no-op.
type ForceMatch struct{}

// Disconnect removes all of a participant's resting orders and their
// position. Issued by the session layer when a connection closes.
type Disconnect struct{}

// GetBook returns the full book snapshot. Reporting surface only.
type GetBook struct{}

// GetStats returns aggregate market statistics. Reporting surface only.
type GetStats struct{}

// TailTrades returns the most recent N trades. Reporting surface only.
type TailTrades struct {
	N int
}

func (Place) isCommand()        {}
func (Cancel) isCommand()       {}
func (Update) isCommand()       {}
func (GetOrders) isCommand()    {}
func (GetPositions) isCommand() {}
func (GetTrades) isCommand()    {}
func (ForceMatch) isCommand()   {}
func (Disconnect) isCommand()   {}
func (GetBook) isCommand()      {}
func (GetStats) isCommand()     {}
func (TailTrades) isCommand()   {}

// wireCommand is the inbound JSON shape, discriminated by Type.
type wireCommand struct {
	Type         string           `json:"type"`
	Qty          int64            `json:"qty"`
	Price        *decimal.Decimal `json:"price"`
	OrderType    string           `json:"orderType"`
	StopLoss     *decimal.Decimal `json:"stopLoss"`
	StopLossType string           `json:"stopLossType"`
	OrderID      string           `json:"orderId"`
}

// Decode parses one inbound session message into a Command. Unknown type
// tags return ErrUnknownCommand.
func Decode(raw []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch w.Type {
	case "bid", "ask":
		kind, err := parseKind(w.OrderType)
		if err != nil {
			return nil, err
		}
		exit, err := parseExit(w.StopLoss, w.StopLossType)
		if err != nil {
			return nil, err
		}
		side := book.Bid
		if w.Type == "ask" {
			side = book.Ask
		}
		return Place{Side: side, Qty: w.Qty, Price: w.Price, Kind: kind, Exit: exit}, nil
	case "cancel":
		return Cancel{OrderID: w.OrderID}, nil
	case "update":
		kind, err := parseKind(w.OrderType)
		if err != nil {
			return nil, err
		}
		exit, err := parseExit(w.StopLoss, w.StopLossType)
		if err != nil {
			return nil, err
		}
		return Update{OrderID: w.OrderID, Qty: w.Qty, Price: w.Price, Kind: kind, Exit: exit}, nil
	case "getOrders":
		return GetOrders{}, nil
	case "getPositions":
		return GetPositions{}, nil
	case "getTrades":
		return GetTrades{}, nil
	case "forceMatch":
		return ForceMatch{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, w.Type)
	}
}

func parseKind(s string) (book.OrderKind, error) {
	switch s {
	case "limit", "":
		return book.Limit, nil
	case "market":
		return book.Market, nil
	default:
		return "", fmt.Errorf("%w: orderType %q", ErrValidation, s)
	}
}

func parseExit(price *decimal.Decimal, kind string) (*book.RiskExit, error) {
	if price == nil {
		return nil, nil
	}
	switch kind {
	case "stop_loss", "":
		return &book.RiskExit{TriggerPrice: *price, Kind: book.StopLoss}, nil
	case "take_profit":
		return &book.RiskExit{TriggerPrice: *price, Kind: book.TakeProfit}, nil
	default:
		return nil, fmt.Errorf("%w: stopLossType %q", ErrValidation, kind)
	}
}
