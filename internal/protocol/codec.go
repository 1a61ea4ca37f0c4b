// Package protocol decodes the mixed-mode wire protocol: binary data frames
// carrying a 1-byte type code plus a schema-encoded payload, and JSON text
// frames carrying control acknowledgements or legacy-format data.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"marketfeed/internal/model"
)

// Decode errors. A failed frame is logged and dropped by the caller; it
// never interrupts the stream.
var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrPayloadDecode      = errors.New("payload decode error")
)

// Decode parses one binary data frame into its typed message.
//
// Frame layout: byte[0] is the type code (1..8), byte[1:] is the payload in
// the big-endian fixed layout registered for that type. Strings are
// uint16-length-prefixed UTF-8; prices are float64; sizes and timestamps
// are int64 (µs since epoch, full precision).
func Decode(frame []byte) (Message, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(frame))
	}

	typ := MessageType(frame[0])
	if typ < TypeMarketQuoteList || typ > maxMessageType {
		return nil, fmt.Errorf("%w: code %d", ErrUnknownMessageType, frame[0])
	}

	r := &payloadReader{r: bytes.NewReader(frame[1:])}

	var msg Message
	switch typ {
	case TypeMarketQuoteList:
		msg = decodeQuoteList(r)
	case TypeMarketOrderBook:
		msg = decodeOrderBook(r)
	case TypeMarketOrderBookCancel:
		msg = OrderBookCancel{StockCd: r.str(), Timestamp: r.i64()}
	case TypeOrderAccepted:
		msg = OrderAccepted{Order: decodeOrderUpdate(r)}
	case TypeOrderRejected:
		msg = OrderRejected{Order: decodeOrderUpdate(r), Reason: r.str()}
	case TypeOrderExecuted:
		msg = decodeExecution(r)
	case TypeAccountBalanceUpdate:
		msg = decodeBalanceUpdate(r)
	case TypeDepositUpdated:
		msg = DepositUpdate{Deposit: model.DepositUpdate{
			AccountNo:    r.str(),
			Deposit:      r.f64(),
			Withdrawable: r.f64(),
			Timestamp:    r.i64(),
		}}
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadDecode, typ, r.err)
	}
	return msg, nil
}

func decodeQuoteList(r *payloadReader) QuoteList {
	count := int(r.u16())
	quotes := make([]model.Quote, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		quotes = append(quotes, model.Quote{
			StockCd:   r.str(),
			Bid:       r.f64(),
			Ask:       r.f64(),
			BidSize:   r.i64(),
			AskSize:   r.i64(),
			Timestamp: r.i64(),
		})
	}
	return QuoteList{Quotes: quotes}
}

func decodeOrderBook(r *payloadReader) OrderBook {
	snap := model.OrderBookSnapshot{StockCd: r.str()}
	depth := int(r.u16())
	snap.Levels = make([]model.BookLevel, 0, depth)
	for i := 0; i < depth && r.err == nil; i++ {
		snap.Levels = append(snap.Levels, model.BookLevel{
			Bid:     r.f64(),
			Ask:     r.f64(),
			BidSize: r.i64(),
			AskSize: r.i64(),
		})
	}
	snap.Timestamp = r.i64()
	return OrderBook{Snapshot: snap}
}

func decodeOrderUpdate(r *payloadReader) model.OrderUpdate {
	return model.OrderUpdate{
		AccountNo: r.str(),
		OrderNo:   r.str(),
		StockCd:   r.str(),
		Side:      model.Side(r.u8()),
		Price:     r.f64(),
		Quantity:  r.i64(),
		Timestamp: r.i64(),
	}
}

func decodeExecution(r *payloadReader) OrderExecuted {
	return OrderExecuted{Execution: model.Execution{
		AccountNo:   r.str(),
		OrderNo:     r.str(),
		StockCd:     r.str(),
		Side:        model.Side(r.u8()),
		ExecPrice:   r.f64(),
		ExecQty:     r.i64(),
		Deposit:     r.f64(),
		TotalMargin: r.f64(),
		Timestamp:   r.i64(),
	}}
}

func decodeBalanceUpdate(r *payloadReader) BalanceUpdate {
	return BalanceUpdate{Position: model.PositionUpdate{
		AccountNo:      r.str(),
		StockCd:        r.str(),
		BookQuantity:   r.i64(),
		BookPrice:      r.f64(),
		CurrentPrice:   r.f64(),
		EvalProfitLoss: r.f64(),
		Timestamp:      r.i64(),
	}}
}

// payloadReader reads big-endian fields and remembers the first error, so
// decode functions can read linearly without per-field error checks.
type payloadReader struct {
	r   *bytes.Reader
	err error
}

func (p *payloadReader) u8() uint8 {
	if p.err != nil {
		return 0
	}
	b, err := p.r.ReadByte()
	if err != nil {
		p.err = err
		return 0
	}
	return b
}

func (p *payloadReader) u16() uint16 {
	var buf [2]byte
	if !p.fill(buf[:]) {
		return 0
	}
	return binary.BigEndian.Uint16(buf[:])
}

func (p *payloadReader) i64() int64 {
	var buf [8]byte
	if !p.fill(buf[:]) {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func (p *payloadReader) f64() float64 {
	var buf [8]byte
	if !p.fill(buf[:]) {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:]))
}

func (p *payloadReader) str() string {
	n := int(p.u16())
	if p.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if !p.fill(buf) {
		return ""
	}
	return string(buf)
}

func (p *payloadReader) fill(buf []byte) bool {
	if p.err != nil {
		return false
	}
	if _, err := io.ReadFull(p.r, buf); err != nil {
		p.err = err
		return false
	}
	return true
}
