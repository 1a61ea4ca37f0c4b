// Package channel defines the logical subscription channel grammar.
//
// A channel is a typed subscription target, distinct from the physical
// WebSocket connection. The wire grammar is:
//
//	market.quote
//	market.orderbook.<symbol>
//	private.<accountNo>
//
// Every well-formed channel string round-trips losslessly through
// Parse → String.
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownChannelType is returned when a string matches none of the
// channel grammar rules.
var ErrUnknownChannelType = errors.New("unknown channel type")

// Kind classifies a channel.
type Kind int

const (
	KindMarketQuote Kind = iota + 1
	KindMarketOrderBook
	KindPrivate
)

// String returns the display name for a kind.
func (k Kind) String() string {
	switch k {
	case KindMarketQuote:
		return "market_quote"
	case KindMarketOrderBook:
		return "market_orderbook"
	case KindPrivate:
		return "private"
	default:
		return "unknown"
	}
}

const (
	quoteChannel    = "market.quote"
	orderBookPrefix = "market.orderbook."
	privatePrefix   = "private."
)

// Channel is a typed, parameterized subscription target. Channels compare
// equal by their canonical string form.
type Channel struct {
	Kind      Kind
	Symbol    string // Set for KindMarketOrderBook
	AccountNo string // Set for KindPrivate
}

// MarketQuote returns the global quote channel.
func MarketQuote() Channel {
	return Channel{Kind: KindMarketQuote}
}

// MarketOrderBook returns the order book channel for one symbol.
func MarketOrderBook(symbol string) Channel {
	return Channel{Kind: KindMarketOrderBook, Symbol: symbol}
}

// Private returns the account-scoped private channel.
func Private(accountNo string) Channel {
	return Channel{Kind: KindPrivate, AccountNo: accountNo}
}

// Parse converts a channel string to its typed form.
func Parse(s string) (Channel, error) {
	switch {
	case s == quoteChannel:
		return MarketQuote(), nil

	case strings.HasPrefix(s, orderBookPrefix):
		symbol := s[len(orderBookPrefix):]
		if symbol == "" {
			return Channel{}, fmt.Errorf("%w: %q missing symbol", ErrUnknownChannelType, s)
		}
		return MarketOrderBook(symbol), nil

	case strings.HasPrefix(s, privatePrefix):
		accountNo := s[len(privatePrefix):]
		if accountNo == "" {
			return Channel{}, fmt.Errorf("%w: %q missing account", ErrUnknownChannelType, s)
		}
		return Private(accountNo), nil

	default:
		return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannelType, s)
	}
}

// String formats the channel in its canonical wire form.
func (c Channel) String() string {
	switch c.Kind {
	case KindMarketQuote:
		return quoteChannel
	case KindMarketOrderBook:
		return orderBookPrefix + c.Symbol
	case KindPrivate:
		return privatePrefix + c.AccountNo
	default:
		return ""
	}
}

// IsPrivate reports whether the channel requires an access token to
// subscribe.
func (c Channel) IsPrivate() bool {
	return c.Kind == KindPrivate
}
