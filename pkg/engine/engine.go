// Package engine hosts the single-writer matching engine: the order book,
// position tracker and trade ledger are owned by one goroutine that applies
// commands atomically and in full serial order.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
	"github.com/HarshJ2508/order-execution-sys/pkg/ledger"
	"github.com/HarshJ2508/order-execution-sys/pkg/position"
	"github.com/HarshJ2508/order-execution-sys/pkg/util"
)

type request struct {
	participantID string
	cmd           Command
	reply         chan reply
}

type reply struct {
	result *Result
	err    error
}

// Engine drives continuous matching over a single instrument. All state
// behind it is touched only by the run goroutine; collaborators interact
// through Do and receive immutable snapshots.
type Engine struct {
	log       *zap.SugaredLogger
	clock     util.Clock
	broadcast Broadcaster

	book      *book.OrderBook
	positions *position.Tracker
	trades    *ledger.Ledger

	// closed orders kept for historical lookups and for telling a terminal
	// order apart from an unknown id
	archive map[string]*book.Order

	cmdCh  chan request
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an engine with an empty book. queueSize bounds the number of
// commands waiting for the writer.
func New(log *zap.SugaredLogger, clock util.Clock, queueSize int) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		log:       log,
		clock:     clock,
		broadcast: NopBroadcaster{},
		book:      book.New(),
		positions: position.NewTracker(),
		trades:    ledger.New(),
		archive:   make(map[string]*book.Order),
		cmdCh:     make(chan request, queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetBroadcaster wires the snapshot sink. Must be called before Start.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcast = b
}

// Start launches the writer goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Stop shuts the writer down. In-flight Do calls fail with ErrEngineStopped.
func (e *Engine) Stop() {
	e.cancel()
}

func (e *Engine) run() {
	for {
		select {
		case req := <-e.cmdCh:
			res, err := e.apply(req.participantID, req.cmd)
			req.reply <- reply{result: res, err: err}
		case <-e.ctx.Done():
			return
		}
	}
}

// Do submits one command and waits for its synchronous result. Commands are
// applied atomically in arrival order; the reply reflects the command's
// complete effect.
func (e *Engine) Do(ctx context.Context, participantID string, cmd Command) (*Result, error) {
	req := request{participantID: participantID, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case e.cmdCh <- req:
	case <-e.ctx.Done():
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-e.ctx.Done():
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// apply runs entirely on the writer goroutine.
func (e *Engine) apply(pid string, cmd Command) (*Result, error) {
	switch c := cmd.(type) {
	case Place:
		return e.applyPlace(pid, c)
	case Cancel:
		return e.applyCancel(pid, c)
	case Update:
		return e.applyUpdate(pid, c)
	case GetOrders:
		return &Result{Orders: e.book.OrdersOf(pid), Timestamp: e.clock.Now()}, nil
	case GetPositions:
		res := &Result{Positions: []position.Position{}, Timestamp: e.clock.Now()}
		if pos := e.positions.Get(pid); pos != nil {
			res.Positions = append(res.Positions, *pos)
		}
		return res, nil
	case GetTrades:
		return &Result{Trades: e.trades.ForParticipant(pid), Timestamp: e.clock.Now()}, nil
	case ForceMatch:
		return e.applyForceMatch()
	case Disconnect:
		return e.applyDisconnect(pid)
	case GetBook:
		res := &Result{Timestamp: e.clock.Now()}
		e.attachBook(res)
		return res, nil
	case GetStats:
		return &Result{Stats: e.stats(), Timestamp: e.clock.Now()}, nil
	case TailTrades:
		return &Result{Trades: e.trades.Tail(c.N), Timestamp: e.clock.Now()}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (e *Engine) applyPlace(pid string, c Place) (*Result, error) {
	if c.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty %d", ErrValidation, c.Qty)
	}

	var price decimal.Decimal
	switch c.Kind {
	case book.Market:
		opp := e.bestOf(c.Side.Opposite())
		if opp == nil {
			return nil, ErrNoCounterparty
		}
		price = opp.Price
	case book.Limit:
		if c.Price == nil || !c.Price.IsPositive() {
			return nil, fmt.Errorf("%w: limit order needs a positive price", ErrValidation)
		}
		price = *c.Price
	default:
		return nil, fmt.Errorf("%w: order kind %q", ErrValidation, c.Kind)
	}

	if c.Exit != nil && !c.Exit.ValidFor(c.Side, price) {
		return nil, fmt.Errorf("%w: %s %s against price %s", ErrInvalidRiskExit, c.Exit.Kind, c.Exit.TriggerPrice, price)
	}

	now := e.clock.Now()
	o := &book.Order{
		ID:            uuid.NewString(),
		ParticipantID: pid,
		Side:          c.Side,
		Kind:          c.Kind,
		RequestedQty:  c.Qty,
		RemainingQty:  c.Qty,
		Price:         price,
		RiskExit:      c.Exit,
		Status:        book.Pending,
		CreatedAt:     now,
	}
	if replaced := e.book.Upsert(o); replaced != nil {
		e.archive[replaced.ID] = replaced
		e.log.Infow("order_replaced", "participant", pid, "old_order", replaced.ID, "new_order", o.ID, "side", o.Side)
	}
	e.log.Infow("order_placed",
		"participant", pid, "order", o.ID, "side", o.Side, "kind", o.Kind,
		"price", price, "qty", c.Qty)

	events := e.matchLoop()
	e.publish(events)

	res := &Result{
		Message:   fmt.Sprintf("%s order placed successfully", c.Side),
		OrderID:   o.ID,
		Order:     o.Clone(),
		Timestamp: now,
	}
	e.attachBook(res)
	return res, nil
}

func (e *Engine) applyCancel(pid string, c Cancel) (*Result, error) {
	o := e.book.Find(c.OrderID)
	if o == nil || o.ParticipantID != pid {
		return nil, ErrNotFoundOrUnauthorized
	}
	if err := e.book.Remove(o.ID); err != nil {
		panic(fmt.Sprintf("cancel: order %s found but not removable: %v", o.ID, err))
	}
	o.Status = book.Cancelled
	e.archive[o.ID] = o
	e.log.Infow("order_cancelled", "participant", pid, "order", o.ID, "side", o.Side)

	e.publish(nil)
	res := &Result{
		Message:   fmt.Sprintf("%s order %s cancelled successfully", o.Side, o.ID),
		OrderID:   o.ID,
		Timestamp: e.clock.Now(),
	}
	e.attachBook(res)
	return res, nil
}

func (e *Engine) applyUpdate(pid string, c Update) (*Result, error) {
	if c.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty %d", ErrValidation, c.Qty)
	}
	o := e.book.Find(c.OrderID)
	if o == nil {
		if old, ok := e.archive[c.OrderID]; ok && old.ParticipantID == pid {
			return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, c.OrderID, old.Status)
		}
		return nil, ErrNotFoundOrUnauthorized
	}
	if o.ParticipantID != pid {
		return nil, ErrNotFoundOrUnauthorized
	}
	if c.Qty <= o.ExecutedQty {
		return nil, fmt.Errorf("%w: qty %d, executed %d", ErrQuantityBelowExecuted, c.Qty, o.ExecutedQty)
	}

	var price decimal.Decimal
	switch c.Kind {
	case book.Market:
		opp := e.bestOf(o.Side.Opposite())
		if opp == nil {
			return nil, ErrNoCounterparty
		}
		price = opp.Price
	case book.Limit:
		if c.Price == nil || !c.Price.IsPositive() {
			return nil, fmt.Errorf("%w: limit order needs a positive price", ErrValidation)
		}
		price = *c.Price
	default:
		return nil, fmt.Errorf("%w: order kind %q", ErrValidation, c.Kind)
	}

	if c.Exit != nil && !c.Exit.ValidFor(o.Side, price) {
		return nil, fmt.Errorf("%w: %s %s against price %s", ErrInvalidRiskExit, c.Exit.Kind, c.Exit.TriggerPrice, price)
	}

	// All checks passed: amend in place, then settle the book again.
	o.Kind = c.Kind
	o.Price = price
	o.RequestedQty = c.Qty
	o.RemainingQty = c.Qty - o.ExecutedQty
	o.RiskExit = c.Exit
	e.book.Resort(o.Side)
	e.log.Infow("order_updated",
		"participant", pid, "order", o.ID, "side", o.Side, "kind", o.Kind,
		"price", price, "qty", c.Qty)

	events := e.matchLoop()
	e.publish(events)

	res := &Result{
		Message:   fmt.Sprintf("%s order %s updated successfully", o.Side, o.ID),
		OrderID:   o.ID,
		Order:     o.Clone(),
		Timestamp: e.clock.Now(),
	}
	e.attachBook(res)
	return res, nil
}

func (e *Engine) applyForceMatch() (*Result, error) {
	events := e.matchLoop()
	if len(events) > 0 {
		e.publish(events)
	}
	trades := make([]ledger.Trade, len(events))
	for i, ev := range events {
		trades[i] = ev.Trade
	}
	res := &Result{
		Message:   fmt.Sprintf("forced match produced %d trade(s)", len(events)),
		Trades:    trades,
		Timestamp: e.clock.Now(),
	}
	e.attachBook(res)
	return res, nil
}

func (e *Engine) applyDisconnect(pid string) (*Result, error) {
	removed := e.book.RemoveAllFor(pid)
	for _, o := range removed {
		e.archive[o.ID] = o
	}
	e.positions.Remove(pid)
	if len(removed) > 0 {
		e.publish(nil)
	}
	e.log.Infow("participant_disconnected", "participant", pid, "orders_removed", len(removed))
	return &Result{Message: "participant cleaned up", Timestamp: e.clock.Now()}, nil
}

// matchLoop runs continuous matching to exhaustion. Risk-exit triggers fire
// inside the loop at each new trade price and inject market orders that are
// matched before the loop settles; an iterative work list, never deferred
// work, so one command's effects stay atomic.
func (e *Engine) matchLoop() []TradeEvent {
	var events []TradeEvent
	for {
		bid, ask := e.book.BestBid(), e.book.BestAsk()
		if bid == nil || ask == nil || bid.Price.LessThan(ask.Price) {
			return events
		}

		// Maker-price convention: fills always price at the resting ask.
		price := ask.Price
		qty := bid.RemainingQty
		if ask.RemainingQty < qty {
			qty = ask.RemainingQty
		}
		bid.Fill(qty)
		ask.Fill(qty)

		now := e.clock.Now()
		trade := ledger.Trade{
			ID:                  uuid.NewString(),
			Price:               price,
			Quantity:            qty,
			BuyerOrderID:        bid.ID,
			SellerOrderID:       ask.ID,
			BuyerParticipantID:  bid.ParticipantID,
			SellerParticipantID: ask.ParticipantID,
			Timestamp:           now,
			BuyerRiskTriggered:  bid.RiskTriggered,
			SellerRiskTriggered: ask.RiskTriggered,
		}
		e.trades.Append(trade)
		events = append(events, TradeEvent{Trade: trade, RiskTriggered: bid.RiskTriggered || ask.RiskTriggered})
		e.log.Infow("trade_executed",
			"trade", trade.ID, "price", price, "qty", qty,
			"buyer", bid.ParticipantID, "seller", ask.ParticipantID,
			"risk_triggered", bid.RiskTriggered || ask.RiskTriggered)

		for _, o := range []*book.Order{bid, ask} {
			if o.RemainingQty == 0 {
				if err := e.book.Remove(o.ID); err != nil {
					panic(fmt.Sprintf("match: executed order %s not in book: %v", o.ID, err))
				}
				e.archive[o.ID] = o
			}
		}

		e.positions.ApplyFill(bid.ParticipantID, book.Bid, qty, price, bid.RiskExit, now)
		e.positions.ApplyFill(ask.ParticipantID, book.Ask, qty, price, ask.RiskExit, now)

		e.fireOrderTriggers(price)
		e.firePositionTriggers(price, now)
	}
}

// fireOrderTriggers converts any resting order whose risk exit the trade
// price crossed into a market order at that price.
func (e *Engine) fireOrderTriggers(price decimal.Decimal) {
	for _, s := range []book.Side{book.Bid, book.Ask} {
		converted := false
		for _, o := range e.book.Orders(s) {
			if o.RiskExit == nil || !o.RiskExit.Fires(o.Side == book.Bid, price) {
				continue
			}
			e.log.Infow("order_risk_triggered",
				"order", o.ID, "participant", o.ParticipantID, "side", o.Side,
				"trigger", o.RiskExit.Kind, "trigger_price", o.RiskExit.TriggerPrice, "price", price)
			o.Kind = book.Market
			o.Price = price
			o.RiskExit = nil
			o.RiskTriggered = true
			converted = true
		}
		if converted {
			e.book.Resort(s)
		}
	}
}

// firePositionTriggers closes out any position whose risk exit fired by
// injecting an opposite-side market order for the full net quantity.
func (e *Engine) firePositionTriggers(price decimal.Decimal, now time.Time) {
	for _, pos := range e.positions.FireTriggers(price) {
		side := book.Ask
		qty := pos.NetQuantity
		if qty < 0 {
			side = book.Bid
			qty = -qty
		}
		o := &book.Order{
			ID:            uuid.NewString(),
			ParticipantID: pos.ParticipantID,
			Side:          side,
			Kind:          book.Market,
			RequestedQty:  qty,
			RemainingQty:  qty,
			Price:         price,
			Status:        book.Pending,
			RiskTriggered: true,
			CreatedAt:     now,
		}
		if replaced := e.book.Upsert(o); replaced != nil {
			e.archive[replaced.ID] = replaced
		}
		e.log.Infow("position_risk_triggered",
			"participant", pos.ParticipantID, "net_qty", pos.NetQuantity,
			"trigger", pos.RiskExit.Kind, "trigger_price", pos.RiskExit.TriggerPrice,
			"price", price, "close_order", o.ID)
	}
}

func (e *Engine) bestOf(s book.Side) *book.Order {
	if s == book.Bid {
		return e.book.BestBid()
	}
	return e.book.BestAsk()
}

func (e *Engine) stats() *Stats {
	st := &Stats{
		Volume24h:  e.trades.VolumeSince(e.clock.Now().Add(-24 * time.Hour)),
		TradeCount: e.trades.Len(),
		OpenOrders: len(e.book.Orders(book.Bid)) + len(e.book.Orders(book.Ask)),
	}
	if b := e.book.BestBid(); b != nil {
		p := b.Price
		st.BestBid = &p
	}
	if a := e.book.BestAsk(); a != nil {
		p := a.Price
		st.BestAsk = &p
	}
	if last, ok := e.trades.LastPrice(); ok {
		p := last
		st.LastTradePrice = &p
	}
	return st
}

// attachBook copies the current book and last price onto an ack.
func (e *Engine) attachBook(res *Result) {
	res.Bids = e.book.BidsSnapshot()
	res.Asks = e.book.AsksSnapshot()
	if last, ok := e.trades.LastPrice(); ok {
		p := last
		res.LastTradePrice = &p
	}
}

// publish hands the broadcaster an immutable snapshot of the command's
// complete effect. The broadcaster must not block.
func (e *Engine) publish(events []TradeEvent) {
	u := Snapshot{
		Bids:      e.book.BidsSnapshot(),
		Asks:      e.book.AsksSnapshot(),
		Trades:    events,
		Timestamp: e.clock.Now(),
	}
	if last, ok := e.trades.LastPrice(); ok {
		p := last
		u.LastTradePrice = &p
	}
	e.broadcast.Publish(u)
}
