package net

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrBadDecimal         = errors.New("malformed decimal field")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	BookQuery
)

type ReportType uint8

const (
	OrderAck ReportType = iota
	ExecutionReport
	ErrorReport
	BookReport
)

type Message interface {
	GetType() MessageType
}

// BaseMessage carries the two-byte type header every message starts
// with.
type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

// Wire format: two-byte big-endian type header, then the body. Strings
// and decimals travel as one-byte-length-prefixed ASCII; decimals stay
// exact in transit that way. UUIDs travel as their raw 16 bytes.

// reader consumes a message body left to right, latching the first
// error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrMessageTooShort
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) str() string {
	n := int(r.u8())
	return string(r.take(n))
}

func (r *reader) uuid() uuid.UUID {
	b := r.take(16)
	if b == nil {
		return uuid.Nil
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		r.err = err
		return uuid.Nil
	}
	return id
}

// decimal reads a length-prefixed ASCII decimal. Empty means absent and
// returns nil.
func (r *reader) decimal() *decimal.Decimal {
	s := r.str()
	if r.err != nil || s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		r.err = ErrBadDecimal
		return nil
	}
	return &d
}

// writer builds a message body left to right.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) str(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) uuid(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < 2 {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := &reader{buf: msg[2:]}
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		m, err := parseNewOrder(body)
		return m, err
	case CancelOrder:
		m, err := parseCancelOrder(body)
		return m, err
	case BookQuery:
		m, err := parseBookQuery(body)
		return m, err
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage carries one order submission.
type NewOrderMessage struct {
	BaseMessage
	Side          common.Side
	OrderType     common.OrderType
	TimeInForce   common.TimeInForce
	AccountID     uuid.UUID
	UserID        uuid.UUID
	Symbol        string
	Price         *decimal.Decimal // nil for market orders
	Quantity      decimal.Decimal
	ClientOrderID string
}

// Order converts the message into a fresh domain order.
func (m *NewOrderMessage) Order() common.Order {
	return common.Order{
		ID:            uuid.New(),
		ClientOrderID: m.ClientOrderID,
		Symbol:        m.Symbol,
		Side:          m.Side,
		Type:          m.OrderType,
		Quantity:      m.Quantity,
		Price:         m.Price,
		AccountID:     m.AccountID,
		UserID:        m.UserID,
		TimeInForce:   m.TimeInForce,
	}
}

func (m *NewOrderMessage) Serialize() []byte {
	w := &writer{}
	w.u16(uint16(NewOrder))
	w.u8(uint8(m.Side))
	w.u8(uint8(m.OrderType))
	w.u8(uint8(m.TimeInForce))
	w.uuid(m.AccountID)
	w.uuid(m.UserID)
	w.str(m.Symbol)
	if m.Price != nil {
		w.str(m.Price.String())
	} else {
		w.str("")
	}
	w.str(m.Quantity.String())
	w.str(m.ClientOrderID)
	return w.buf
}

func parseNewOrder(r *reader) (NewOrderMessage, error) {
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	m.Side = common.Side(r.u8())
	m.OrderType = common.OrderType(r.u8())
	m.TimeInForce = common.TimeInForce(r.u8())
	m.AccountID = r.uuid()
	m.UserID = r.uuid()
	m.Symbol = r.str()
	m.Price = r.decimal()
	if qty := r.decimal(); qty != nil {
		m.Quantity = *qty
	} else if r.err == nil {
		r.err = ErrBadDecimal
	}
	m.ClientOrderID = r.str()

	if r.err != nil {
		return NewOrderMessage{}, r.err
	}
	return m, nil
}

// CancelOrderMessage requests removal of a resting order by id.
type CancelOrderMessage struct {
	BaseMessage
	OrderID uuid.UUID
}

func (m *CancelOrderMessage) Serialize() []byte {
	w := &writer{}
	w.u16(uint16(CancelOrder))
	w.uuid(m.OrderID)
	return w.buf
}

func parseCancelOrder(r *reader) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.OrderID = r.uuid()
	if r.err != nil {
		return CancelOrderMessage{}, r.err
	}
	return m, nil
}

// BookQueryMessage requests a depth snapshot for one symbol.
type BookQueryMessage struct {
	BaseMessage
	Symbol string
}

func (m *BookQueryMessage) Serialize() []byte {
	w := &writer{}
	w.u16(uint16(BookQuery))
	w.str(m.Symbol)
	return w.buf
}

func parseBookQuery(r *reader) (BookQueryMessage, error) {
	m := BookQueryMessage{BaseMessage: BaseMessage{TypeOf: BookQuery}}
	m.Symbol = r.str()
	if r.err != nil {
		return BookQueryMessage{}, r.err
	}
	return m, nil
}

// Report is the server-to-client frame: acks, executions, errors and
// book snapshots.
type Report struct {
	TypeOf    ReportType
	OrderID   uuid.UUID
	TradeID   uuid.UUID
	Side      common.Side
	Symbol    string
	Quantity  string // decimal as ASCII, empty when absent
	Price     string
	Timestamp uint64 // unix nanos
	ErrCode   string
	ErrDetail string
}

func (r *Report) Serialize() []byte {
	w := &writer{}
	w.u8(uint8(r.TypeOf))
	w.uuid(r.OrderID)
	w.uuid(r.TradeID)
	w.u8(uint8(r.Side))
	w.str(r.Symbol)
	w.str(r.Quantity)
	w.str(r.Price)
	w.u64(r.Timestamp)
	w.str(r.ErrCode)
	w.str(r.ErrDetail)
	return w.buf
}

// ParseReport decodes a server report frame. Clients use it; the server
// only writes them.
func ParseReport(buf []byte) (Report, error) {
	r := &reader{buf: buf}
	report := Report{
		TypeOf:  ReportType(r.u8()),
		OrderID: r.uuid(),
		TradeID: r.uuid(),
		Side:    common.Side(r.u8()),
	}
	report.Symbol = r.str()
	report.Quantity = r.str()
	report.Price = r.str()
	report.Timestamp = r.u64()
	report.ErrCode = r.str()
	report.ErrDetail = r.str()
	if r.err != nil {
		return Report{}, r.err
	}
	return report, nil
}
