package protocol

import (
	"encoding/json"
	"fmt"

	"marketfeed/internal/channel"
	"marketfeed/internal/model"
)

// FrameKind classifies an inbound WebSocket frame. Binary frames are data
// frames; text frames are either control acknowledgements (an `action`
// field) or legacy-format JSON data (a `messageType` field).
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameControl
	FrameLegacyData
)

// ControlAck is a server acknowledgement of a SUBSCRIBE/UNSUBSCRIBE
// control frame.
type ControlAck struct {
	Action   string   `json:"action"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Status   string   `json:"status,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// textProbe peeks at the discriminating fields of a text frame.
type textProbe struct {
	Action      string `json:"action"`
	MessageType uint8  `json:"messageType"`
	Channel     string `json:"channel"`
}

// ClassifyText determines how a JSON text frame should be routed.
func ClassifyText(data []byte) (FrameKind, error) {
	var probe textProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return FrameUnknown, fmt.Errorf("%w: not valid JSON: %v", ErrMalformedFrame, err)
	}

	switch {
	case probe.Action != "":
		return FrameControl, nil
	case probe.MessageType != 0 || probe.Channel != "":
		return FrameLegacyData, nil
	default:
		return FrameUnknown, fmt.Errorf("%w: text frame has no action or messageType field", ErrMalformedFrame)
	}
}

// DecodeControl parses a control acknowledgement frame.
func DecodeControl(data []byte) (ControlAck, error) {
	var ack ControlAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return ControlAck{}, fmt.Errorf("%w: control frame: %v", ErrMalformedFrame, err)
	}
	return ack, nil
}

// legacyEnvelope is the compatibility-path JSON data frame: the binary type
// code as a JSON number plus a per-type payload object. Older senders omit
// messageType and key the frame by channel instead.
type legacyEnvelope struct {
	MessageType uint8           `json:"messageType"`
	Channel     string          `json:"channel"`
	Payload     json.RawMessage `json:"payload"`
}

// typeForChannel maps a channel-keyed frame to its message type. Market
// channels identify exactly one kind; private frames are ambiguous without
// a messageType and are rejected.
func typeForChannel(name string) (MessageType, error) {
	ch, err := channel.Parse(name)
	if err != nil {
		return 0, fmt.Errorf("%w: channel %q: %v", ErrMalformedFrame, name, err)
	}

	switch ch.Kind {
	case channel.KindMarketQuote:
		return TypeMarketQuoteList, nil
	case channel.KindMarketOrderBook:
		return TypeMarketOrderBook, nil
	default:
		return 0, fmt.Errorf("%w: channel %q does not identify a message kind", ErrMalformedFrame, name)
	}
}

type legacyQuote struct {
	StockCd   string  `json:"stockCd"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   int64   `json:"bidSize"`
	AskSize   int64   `json:"askSize"`
	Timestamp int64   `json:"timestamp"`
}

type legacyBookLevel struct {
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize int64   `json:"bidSize"`
	AskSize int64   `json:"askSize"`
}

type legacyOrderBook struct {
	StockCd   string            `json:"stockCd"`
	Quotes    []legacyBookLevel `json:"quotes"`
	Timestamp int64             `json:"timestamp"`
}

type legacyOrder struct {
	AccountNo   string  `json:"accountNo"`
	OrderNo     string  `json:"orderNo"`
	StockCd     string  `json:"stockCd"`
	Side        uint8   `json:"side"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	ExecPrice   float64 `json:"execPrice"`
	ExecQty     int64   `json:"execQty"`
	Deposit     float64 `json:"deposit"`
	TotalMargin float64 `json:"totalMargin"`
	Reason      string  `json:"reason"`
	Timestamp   int64   `json:"timestamp"`
}

type legacyPosition struct {
	AccountNo      string  `json:"accountNo"`
	StockCd        string  `json:"stockCd"`
	BookQuantity   int64   `json:"bookQuantity"`
	BookPrice      float64 `json:"bookPrice"`
	CurrentPrice   float64 `json:"currentPrice"`
	EvalProfitLoss float64 `json:"evalProfitLoss"`
	Timestamp      int64   `json:"timestamp"`
}

type legacyDeposit struct {
	AccountNo    string  `json:"accountNo"`
	Deposit      float64 `json:"deposit"`
	Withdrawable float64 `json:"withdrawable"`
	Timestamp    int64   `json:"timestamp"`
}

// DecodeLegacy parses a legacy-format JSON data frame into the same tagged
// union produced by Decode.
func DecodeLegacy(data []byte) (Message, error) {
	var env legacyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: legacy envelope: %v", ErrMalformedFrame, err)
	}

	typ := MessageType(env.MessageType)
	if env.MessageType == 0 && env.Channel != "" {
		t, err := typeForChannel(env.Channel)
		if err != nil {
			return nil, err
		}
		typ = t
	}
	if typ < TypeMarketQuoteList || typ > maxMessageType {
		return nil, fmt.Errorf("%w: code %d", ErrUnknownMessageType, env.MessageType)
	}

	fail := func(err error) (Message, error) {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadDecode, typ, err)
	}

	switch typ {
	case TypeMarketQuoteList:
		var wire []legacyQuote
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		quotes := make([]model.Quote, 0, len(wire))
		for _, q := range wire {
			quotes = append(quotes, model.Quote{
				StockCd:   q.StockCd,
				Bid:       q.Bid,
				Ask:       q.Ask,
				BidSize:   q.BidSize,
				AskSize:   q.AskSize,
				Timestamp: q.Timestamp,
			})
		}
		return QuoteList{Quotes: quotes}, nil

	case TypeMarketOrderBook:
		var wire legacyOrderBook
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		levels := make([]model.BookLevel, 0, len(wire.Quotes))
		for _, l := range wire.Quotes {
			levels = append(levels, model.BookLevel{
				Bid:     l.Bid,
				Ask:     l.Ask,
				BidSize: l.BidSize,
				AskSize: l.AskSize,
			})
		}
		return OrderBook{Snapshot: model.OrderBookSnapshot{
			StockCd:   wire.StockCd,
			Levels:    levels,
			Timestamp: wire.Timestamp,
		}}, nil

	case TypeMarketOrderBookCancel:
		var wire legacyOrderBook
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		return OrderBookCancel{StockCd: wire.StockCd, Timestamp: wire.Timestamp}, nil

	case TypeOrderAccepted, TypeOrderRejected, TypeOrderExecuted:
		var wire legacyOrder
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		order := model.OrderUpdate{
			AccountNo: wire.AccountNo,
			OrderNo:   wire.OrderNo,
			StockCd:   wire.StockCd,
			Side:      model.Side(wire.Side),
			Price:     wire.Price,
			Quantity:  wire.Quantity,
			Timestamp: wire.Timestamp,
		}
		switch typ {
		case TypeOrderAccepted:
			return OrderAccepted{Order: order}, nil
		case TypeOrderRejected:
			return OrderRejected{Order: order, Reason: wire.Reason}, nil
		default:
			return OrderExecuted{Execution: model.Execution{
				AccountNo:   wire.AccountNo,
				OrderNo:     wire.OrderNo,
				StockCd:     wire.StockCd,
				Side:        model.Side(wire.Side),
				ExecPrice:   wire.ExecPrice,
				ExecQty:     wire.ExecQty,
				Deposit:     wire.Deposit,
				TotalMargin: wire.TotalMargin,
				Timestamp:   wire.Timestamp,
			}}, nil
		}

	case TypeAccountBalanceUpdate:
		var wire legacyPosition
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		return BalanceUpdate{Position: model.PositionUpdate{
			AccountNo:      wire.AccountNo,
			StockCd:        wire.StockCd,
			BookQuantity:   wire.BookQuantity,
			BookPrice:      wire.BookPrice,
			CurrentPrice:   wire.CurrentPrice,
			EvalProfitLoss: wire.EvalProfitLoss,
			Timestamp:      wire.Timestamp,
		}}, nil

	default: // TypeDepositUpdated
		var wire legacyDeposit
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			return fail(err)
		}
		return DepositUpdate{Deposit: model.DepositUpdate{
			AccountNo:    wire.AccountNo,
			Deposit:      wire.Deposit,
			Withdrawable: wire.Withdrawable,
			Timestamp:    wire.Timestamp,
		}}, nil
	}
}
