// Package dispatch maps decoded messages to their handlers, keeps the
// latest-value store consistent, and re-publishes an application-level
// event for each update.
package dispatch

import (
	"log/slog"
	"sync"

	"marketfeed/internal/account"
	"marketfeed/internal/protocol"
	"marketfeed/internal/store"
)

// Stats contains dispatcher counters.
type Stats struct {
	Dispatched      int64
	QuotesApplied   int64
	QuotesSkipped   int64
	EventsPublished int64
	Unhandled       int64
}

// Dispatcher is the side-effect-only message sink: store writes, balance
// book writes, and event publication. It never returns an error across the
// reader-loop boundary; a single bad message must not take down the stream.
type Dispatcher struct {
	store    *store.Store
	accounts *account.Book
	bus      *Bus
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewDispatcher wires the dispatcher to its store, balance book, and bus.
func NewDispatcher(st *store.Store, accounts *account.Book, bus *Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		store:    st,
		accounts: accounts,
		bus:      bus,
		logger:   logger,
	}
}

// Dispatch processes one decoded message to completion: store write, then
// event publish. Messages arrive in socket-delivery order from the single
// reader loop; the last received update wins for a symbol's store entry.
func (d *Dispatcher) Dispatch(msg protocol.Message) {
	d.count(func(s *Stats) { s.Dispatched++ })

	switch m := msg.(type) {
	case protocol.QuoteList:
		for _, q := range m.Quotes {
			d.applyQuote(q.StockCd, q.Bid, q.Ask, q.Timestamp)
		}

	case protocol.OrderBook:
		d.publish(OrderBookUpdated{
			Symbol:    m.Snapshot.StockCd,
			Snapshot:  m.Snapshot,
			Timestamp: m.Snapshot.Timestamp,
		})

	case protocol.OrderBookCancel:
		// No handler yet. Logged and published so the gap stays visible.
		d.logger.Info("orderbook cancel unhandled", "symbol", m.StockCd)
		d.count(func(s *Stats) { s.Unhandled++ })
		d.publish(OrderBookCancelled{Symbol: m.StockCd, Timestamp: m.Timestamp})

	case protocol.OrderAccepted:
		d.publish(OrderAccepted{Order: m.Order})

	case protocol.OrderRejected:
		d.publish(OrderRejected{Order: m.Order, Reason: m.Reason})

	case protocol.OrderExecuted:
		// Fill reports carry the account's post-execution balance fields;
		// this is a direct write, not merely an event.
		d.accounts.ApplyExecution(
			m.Execution.AccountNo,
			m.Execution.Deposit,
			m.Execution.TotalMargin,
			m.Execution.Timestamp,
		)
		d.publish(OrderExecuted{Execution: m.Execution})

	case protocol.BalanceUpdate:
		d.publish(PositionUpdated{Position: m.Position})

	case protocol.DepositUpdate:
		applied := d.accounts.ApplyDeposit(
			m.Deposit.AccountNo,
			m.Deposit.Deposit,
			m.Deposit.Withdrawable,
			m.Deposit.Timestamp,
		)
		if !applied {
			d.logger.Debug("deposit update for unselected account",
				"account", m.Deposit.AccountNo,
			)
		}
		d.publish(DepositUpdated{Deposit: m.Deposit})

	default:
		d.logger.Warn("no handler for message type", "type", msg.Type().String())
		d.count(func(s *Stats) { s.Unhandled++ })
	}
}

// applyQuote writes one quote into the store and publishes DataUpdated.
// Records with an absent bid or ask are skipped.
func (d *Dispatcher) applyQuote(symbol string, bid, ask float64, ts int64) {
	if bid == 0 || ask == 0 {
		d.count(func(s *Stats) { s.QuotesSkipped++ })
		return
	}

	mid := (bid + ask) / 2
	high := max(bid, ask) * 1.0001
	low := min(bid, ask) * 0.9999

	d.store.Upsert(symbol, func(e *store.Entry) {
		e.Close = mid
		e.Bid = bid
		e.Ask = ask
		e.High = high
		e.Low = low
		e.Timestamp = ts
	})
	d.count(func(s *Stats) { s.QuotesApplied++ })

	d.publish(DataUpdated{
		Symbol:    symbol,
		Price:     mid,
		Bid:       bid,
		Ask:       ask,
		High:      high,
		Low:       low,
		Timestamp: ts,
	})
}

func (d *Dispatcher) publish(ev Event) {
	d.bus.Publish(ev)
	d.count(func(s *Stats) { s.EventsPublished++ })
}

func (d *Dispatcher) count(f func(*Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
