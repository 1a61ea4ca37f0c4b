package protocol

import "marketfeed/internal/model"

// MessageType is the 1-byte type code carried at the front of every binary
// data frame. The code ↔ name table is fixed by the server protocol.
type MessageType uint8

const (
	TypeMarketQuoteList MessageType = iota + 1 // 1
	TypeMarketOrderBook                        // 2
	TypeMarketOrderBookCancel                  // 3
	TypeOrderAccepted                          // 4
	TypeOrderRejected                          // 5
	TypeOrderExecuted                          // 6
	TypeAccountBalanceUpdate                   // 7
	TypeDepositUpdated                         // 8
)

// maxMessageType is the highest registered type code.
const maxMessageType = TypeDepositUpdated

// String returns the wire name for a message type.
func (t MessageType) String() string {
	switch t {
	case TypeMarketQuoteList:
		return "MARKET_QUOTE_LIST"
	case TypeMarketOrderBook:
		return "MARKET_ORDER_BOOK"
	case TypeMarketOrderBookCancel:
		return "MARKET_ORDER_BOOK_CANCEL"
	case TypeOrderAccepted:
		return "ORDER_ACCEPTED"
	case TypeOrderRejected:
		return "ORDER_REJECTED"
	case TypeOrderExecuted:
		return "ORDER_EXECUTED"
	case TypeAccountBalanceUpdate:
		return "ACCOUNT_BALANCE_UPDATE"
	case TypeDepositUpdated:
		return "DEPOSIT_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Message is the decoded form of one data frame. The set of implementations
// is closed: one per registered type code. Dispatch sites switch on the
// concrete type, so an unhandled kind is visible at the switch rather than
// swallowed by a default branch.
type Message interface {
	// Type returns the wire type code this message decoded from.
	Type() MessageType
}

// QuoteList carries one or more quotes (MARKET_QUOTE_LIST).
type QuoteList struct {
	Quotes []model.Quote
}

func (QuoteList) Type() MessageType { return TypeMarketQuoteList }

// OrderBook carries a full depth snapshot (MARKET_ORDER_BOOK).
type OrderBook struct {
	Snapshot model.OrderBookSnapshot
}

func (OrderBook) Type() MessageType { return TypeMarketOrderBook }

// OrderBookCancel signals withdrawal of the book for a symbol
// (MARKET_ORDER_BOOK_CANCEL).
type OrderBookCancel struct {
	StockCd   string
	Timestamp int64
}

func (OrderBookCancel) Type() MessageType { return TypeMarketOrderBookCancel }

// OrderAccepted reports that the broker received an order (ORDER_ACCEPTED).
type OrderAccepted struct {
	Order model.OrderUpdate
}

func (OrderAccepted) Type() MessageType { return TypeOrderAccepted }

// OrderRejected reports that the broker refused an order (ORDER_REJECTED).
type OrderRejected struct {
	Order  model.OrderUpdate
	Reason string
}

func (OrderRejected) Type() MessageType { return TypeOrderRejected }

// OrderExecuted reports a fill (ORDER_EXECUTED).
type OrderExecuted struct {
	Execution model.Execution
}

func (OrderExecuted) Type() MessageType { return TypeOrderExecuted }

// BalanceUpdate carries position valuation (ACCOUNT_BALANCE_UPDATE).
type BalanceUpdate struct {
	Position model.PositionUpdate
}

func (BalanceUpdate) Type() MessageType { return TypeAccountBalanceUpdate }

// DepositUpdate carries the account cash balance (DEPOSIT_UPDATED).
type DepositUpdate struct {
	Deposit model.DepositUpdate
}

func (DepositUpdate) Type() MessageType { return TypeDepositUpdated }
