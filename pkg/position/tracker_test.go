package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HarshJ2508/order-execution-sys/pkg/book"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func stopAt(price int64) *book.RiskExit {
	return &book.RiskExit{TriggerPrice: dec(price), Kind: book.StopLoss}
}

func takeAt(price int64) *book.RiskExit {
	return &book.RiskExit{TriggerPrice: dec(price), Kind: book.TakeProfit}
}

func TestTrackerCreateNeedsRiskExit(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.ApplyFill("u1", book.Bid, 10, dec(100), nil, now)
	if tr.Get("u1") != nil {
		t.Fatal("fill without risk exit must not open a position")
	}

	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	pos := tr.Get("u1")
	if pos == nil {
		t.Fatal("fill with risk exit should open a position")
	}
	if pos.NetQuantity != 10 || !pos.AvgPrice.Equal(dec(100)) {
		t.Fatalf("position = %+v", pos)
	}
}

func TestTrackerVWAPFoldIn(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	// Once open, fills without metadata still update the position.
	tr.ApplyFill("u1", book.Bid, 10, dec(110), nil, now)

	pos := tr.Get("u1")
	if pos.NetQuantity != 20 {
		t.Fatalf("net = %d, want 20", pos.NetQuantity)
	}
	if !pos.AvgPrice.Equal(dec(105)) {
		t.Fatalf("avg = %s, want 105", pos.AvgPrice)
	}
	// Stop from the opening fill is retained.
	if pos.RiskExit == nil || !pos.RiskExit.TriggerPrice.Equal(dec(90)) {
		t.Fatalf("risk exit = %+v, want stop at 90", pos.RiskExit)
	}
}

func TestTrackerMostRecentRiskExitWins(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	tr.ApplyFill("u1", book.Bid, 5, dec(100), takeAt(120), now)

	pos := tr.Get("u1")
	if pos.RiskExit == nil || pos.RiskExit.Kind != book.TakeProfit || !pos.RiskExit.TriggerPrice.Equal(dec(120)) {
		t.Fatalf("risk exit = %+v, want take-profit at 120", pos.RiskExit)
	}
}

func TestTrackerReduceKeepsEntryPrice(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	tr.ApplyFill("u1", book.Ask, 4, dec(105), nil, now)

	pos := tr.Get("u1")
	if pos.NetQuantity != 6 {
		t.Fatalf("net = %d, want 6", pos.NetQuantity)
	}
	if !pos.AvgPrice.Equal(dec(100)) {
		t.Fatalf("avg = %s, want unchanged 100", pos.AvgPrice)
	}
}

func TestTrackerDeleteAtExactlyZero(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	tr.ApplyFill("u1", book.Ask, 10, dec(105), nil, now)

	if tr.Get("u1") != nil {
		t.Fatal("position must be deleted when net quantity reaches zero")
	}
}

func TestTrackerSignReversal(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), now)
	// Sell 15: closes the 10 long and opens a 5 short at the crossing price.
	tr.ApplyFill("u1", book.Ask, 15, dec(95), nil, now)

	pos := tr.Get("u1")
	if pos == nil {
		t.Fatal("reversal should keep a position open")
	}
	if pos.NetQuantity != -5 {
		t.Fatalf("net = %d, want -5", pos.NetQuantity)
	}
	if !pos.AvgPrice.Equal(dec(95)) {
		t.Fatalf("avg = %s, want crossing price 95", pos.AvgPrice)
	}
}

func TestTrackerShortPosition(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("u1", book.Ask, 8, dec(100), stopAt(110), now)

	pos := tr.Get("u1")
	if pos.NetQuantity != -8 || !pos.AvgPrice.Equal(dec(100)) {
		t.Fatalf("position = %+v", pos)
	}
}

func TestTrackerFireTriggers(t *testing.T) {
	tests := []struct {
		name  string
		side  book.Side
		exit  *book.RiskExit
		price int64
		fired bool
	}{
		{"long stop fires at threshold", book.Bid, stopAt(90), 90, true},
		{"long stop fires below", book.Bid, stopAt(90), 89, true},
		{"long stop holds above", book.Bid, stopAt(90), 91, false},
		{"long take fires above", book.Bid, takeAt(110), 111, true},
		{"long take holds below", book.Bid, takeAt(110), 109, false},
		{"short stop fires above", book.Ask, stopAt(110), 111, true},
		{"short stop holds below", book.Ask, stopAt(110), 109, false},
		{"short take fires below", book.Ask, takeAt(90), 89, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.ApplyFill("u1", tt.side, 10, dec(100), tt.exit, time.Now())

			fired := tr.FireTriggers(dec(tt.price))
			if tt.fired {
				if len(fired) != 1 || fired[0].ParticipantID != "u1" {
					t.Fatalf("fired = %v, want u1", fired)
				}
				if tr.Get("u1") != nil {
					t.Fatal("fired position must be deleted")
				}
			} else {
				if len(fired) != 0 {
					t.Fatalf("fired = %v, want none", fired)
				}
				if tr.Get("u1") == nil {
					t.Fatal("unfired position must survive")
				}
			}
		})
	}
}

func TestTrackerAllSorted(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.ApplyFill("zed", book.Bid, 1, dec(100), stopAt(90), now)
	tr.ApplyFill("abe", book.Bid, 1, dec(100), stopAt(90), now)

	all := tr.All()
	if len(all) != 2 || all[0].ParticipantID != "abe" || all[1].ParticipantID != "zed" {
		t.Fatalf("All() = %v, want sorted by participant", all)
	}
}

func TestTrackerGetReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.ApplyFill("u1", book.Bid, 10, dec(100), stopAt(90), time.Now())

	pos := tr.Get("u1")
	pos.NetQuantity = 0
	pos.RiskExit.TriggerPrice = dec(1)

	live := tr.Get("u1")
	if live.NetQuantity != 10 || !live.RiskExit.TriggerPrice.Equal(dec(90)) {
		t.Fatal("mutating a returned position leaked into the tracker")
	}
}
