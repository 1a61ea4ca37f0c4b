package dispatch

import "marketfeed/internal/model"

// Event is the application-level notification published to bus
// subscribers for each accepted update. The set of implementations is
// closed; consumers switch on the concrete type.
type Event interface {
	// Name returns the event's display name for logging.
	Name() string
}

// DataUpdated is published for each accepted quote.
type DataUpdated struct {
	Symbol    string
	Price     float64 // Bid/ask midpoint
	Bid       float64
	Ask       float64
	High      float64
	Low       float64
	Timestamp int64
}

func (DataUpdated) Name() string { return "data_updated" }

// OrderBookUpdated is published when a full depth snapshot replaces the
// prior one for a symbol. Book depth is not merged into the quote store.
type OrderBookUpdated struct {
	Symbol    string
	Snapshot  model.OrderBookSnapshot
	Timestamp int64
}

func (OrderBookUpdated) Name() string { return "orderbook_updated" }

// OrderBookCancelled is the pass-through for the cancel message, which has
// no handler yet. Published so the gap is observable rather than silent.
type OrderBookCancelled struct {
	Symbol    string
	Timestamp int64
}

func (OrderBookCancelled) Name() string { return "orderbook_cancelled" }

// OrderAccepted is published when the broker receives an order.
type OrderAccepted struct {
	Order model.OrderUpdate
}

func (OrderAccepted) Name() string { return "order_accepted" }

// OrderRejected is published when the broker refuses an order.
type OrderRejected struct {
	Order  model.OrderUpdate
	Reason string
}

func (OrderRejected) Name() string { return "order_rejected" }

// OrderExecuted is published for each fill, after the balance book has
// been updated.
type OrderExecuted struct {
	Execution model.Execution
}

func (OrderExecuted) Name() string { return "order_executed" }

// PositionUpdated is published for position valuation changes.
type PositionUpdated struct {
	Position model.PositionUpdate
}

func (PositionUpdated) Name() string { return "position_updated" }

// DepositUpdated is published for every deposit message, whether or not it
// matched the selected account and mutated the balance book.
type DepositUpdated struct {
	Deposit model.DepositUpdate
}

func (DepositUpdated) Name() string { return "deposit_updated" }
