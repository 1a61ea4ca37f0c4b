package model

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Quote is a bid/ask/size tuple for one symbol at one instant.
type Quote struct {
	StockCd   string  // Symbol code (e.g., "005930")
	Bid       float64 // Best bid price
	Ask       float64 // Best ask price
	BidSize   int64   // Quantity at best bid
	AskSize   int64   // Quantity at best ask
	Timestamp int64   // Exchange timestamp (µs since epoch)
}

// MidPrice returns the bid/ask midpoint.
func (q Quote) MidPrice() float64 {
	return (q.Bid + q.Ask) / 2
}

// HighBand returns the upper price band derived from bid/ask.
// The ±0.01% padding is a modeling placeholder, not a session high.
func (q Quote) HighBand() float64 {
	return max(q.Bid, q.Ask) * 1.0001
}

// LowBand returns the lower price band derived from bid/ask.
func (q Quote) LowBand() float64 {
	return min(q.Bid, q.Ask) * 0.9999
}

// BookLevel is a single depth level of an order book.
type BookLevel struct {
	Bid     float64
	Ask     float64
	BidSize int64
	AskSize int64
}

// OrderBookSnapshot is the full current depth-of-market for one symbol.
// Each arrival replaces the prior snapshot; levels are in price-depth
// order as received.
type OrderBookSnapshot struct {
	StockCd   string
	Levels    []BookLevel
	Timestamp int64 // Exchange timestamp (µs since epoch)
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Side identifies the direction of an order.
type Side uint8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// String returns the display name for a side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderUpdate is a lifecycle event for a single order, scoped to one account.
type OrderUpdate struct {
	AccountNo string
	OrderNo   string
	StockCd   string
	Side      Side
	Price     float64
	Quantity  int64
	Timestamp int64
}

// Execution is a fill report. Deposit and TotalMargin carry the account's
// post-execution balance fields, which propagate into the balance book.
type Execution struct {
	AccountNo   string
	OrderNo     string
	StockCd     string
	Side        Side
	ExecPrice   float64
	ExecQty     int64
	Deposit     float64
	TotalMargin float64
	Timestamp   int64
}

// PositionUpdate carries the account's position valuation for one symbol.
type PositionUpdate struct {
	AccountNo      string
	StockCd        string
	BookQuantity   int64
	BookPrice      float64
	CurrentPrice   float64
	EvalProfitLoss float64
	Timestamp      int64
}

// DepositUpdate carries the account's cash balance.
type DepositUpdate struct {
	AccountNo    string
	Deposit      float64
	Withdrawable float64
	Timestamp    int64
}
