// Package net is the TCP order-entry gateway. It parses wire messages,
// hands orders to the engine and fans execution reports back out to
// connected sessions. No matching logic lives here.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/common"
	"vidar/internal/engine"
	"vidar/internal/utils"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// Engine is the order-handling surface the gateway drives.
type Engine interface {
	SubmitOrder(order common.Order) (uuid.UUID, error)
	CancelOrder(orderID uuid.UUID) (bool, error)
	GetOrder(orderID uuid.UUID) (common.Order, error)
	Orderbook(symbol string) common.BookSnapshot
	SubscribeEvents() (<-chan engine.Event, func())
}

// ClientSession is one connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a parsed message to the session that sent it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

type Server struct {
	address string
	port    int
	engine  Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]ClientSession
	accounts   map[uuid.UUID]string // account -> session address

	clientMessages chan ClientMessage
}

func New(address string, port int, eng Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		sessions:       make(map[string]ClientSession),
		accounts:       make(map[uuid.UUID]string),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("gateway shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	s.pool.Setup(t, s.handleConnection)

	t.Go(func() error {
		return s.sessionHandler(t)
	})
	t.Go(func() error {
		return s.eventPump(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("gateway running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client connected")
			s.addSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// eventPump forwards engine fill events to the sessions owning the
// filled orders. Sessions that disappeared are skipped; the match is
// authoritative whether or not the report lands.
func (s *Server) eventPump(t *tomb.Tomb) error {
	events, cancel := s.engine.SubscribeEvents()
	defer cancel()

	for {
		select {
		case <-t.Dying():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fill, isFill := ev.(engine.OrderFilled)
			if !isFill {
				continue
			}
			if err := s.reportFill(fill); err != nil {
				log.Debug().Err(err).Msg("fill report not delivered")
			}
		}
	}
}

func (s *Server) reportFill(fill engine.OrderFilled) error {
	order, err := s.engine.GetOrder(fill.OrderID)
	if err != nil {
		return err
	}

	report := Report{
		TypeOf:    ExecutionReport,
		OrderID:   order.ID,
		TradeID:   fill.Trade.ID,
		Side:      order.Side,
		Symbol:    fill.Trade.Symbol,
		Quantity:  fill.Trade.Quantity.String(),
		Price:     fill.Trade.Price.String(),
		Timestamp: uint64(fill.Trade.Timestamp.UnixNano()),
	}
	return s.sendToAccount(order.AccountID, report.Serialize())
}

func (s *Server) sendToAccount(account uuid.UUID, frame []byte) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	addr, ok := s.accounts[account]
	if !ok {
		return ErrClientDoesNotExist
	}
	session, ok := s.sessions[addr]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := session.conn.Write(frame); err != nil {
		delete(s.sessions, addr)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) sendToAddress(address string, frame []byte) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	session, ok := s.sessions[address]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := session.conn.Write(frame); err != nil {
		delete(s.sessions, address)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) reportError(address string, err error) {
	report := Report{
		TypeOf:    ErrorReport,
		Timestamp: uint64(time.Now().UnixNano()),
		ErrCode:   common.ErrorCode(err),
		ErrDetail: err.Error(),
	}
	if sendErr := s.sendToAddress(address, report.Serialize()); sendErr != nil {
		log.Debug().Err(sendErr).Str("clientAddress", address).Msg("error report not delivered")
	}
}

// sessionHandler drains parsed client messages and actions them.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				s.reportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch message.message.GetType() {
	case Heartbeat:
		return nil

	case NewOrder:
		msg, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrImproperConversion
		}
		order := msg.Order()
		s.bindAccount(order.AccountID, message.clientAddress)

		orderID, err := s.engine.SubmitOrder(order)
		if err != nil {
			return err
		}
		ack := Report{
			TypeOf:    OrderAck,
			OrderID:   orderID,
			Side:      order.Side,
			Symbol:    order.Symbol,
			Timestamp: uint64(time.Now().UnixNano()),
		}
		return s.sendToAddress(message.clientAddress, ack.Serialize())

	case CancelOrder:
		msg, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrImproperConversion
		}
		cancelled, err := s.engine.CancelOrder(msg.OrderID)
		if err != nil {
			return err
		}
		ack := Report{
			TypeOf:    OrderAck,
			OrderID:   msg.OrderID,
			Timestamp: uint64(time.Now().UnixNano()),
		}
		if !cancelled {
			ack.ErrCode = "not_cancelled"
		}
		return s.sendToAddress(message.clientAddress, ack.Serialize())

	case BookQuery:
		msg, ok := message.message.(BookQueryMessage)
		if !ok {
			return ErrImproperConversion
		}
		report := Report{
			TypeOf:    BookReport,
			Symbol:    msg.Symbol,
			Timestamp: uint64(time.Now().UnixNano()),
			ErrDetail: renderSnapshot(s.engine.Orderbook(msg.Symbol)),
		}
		return s.sendToAddress(message.clientAddress, report.Serialize())

	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

// renderSnapshot flattens a depth snapshot into printable rows for the
// book report frame.
func renderSnapshot(snap common.BookSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s bids:\n", snap.Symbol)
	for _, level := range snap.Bids {
		fmt.Fprintf(&sb, "  %s x %s (%d)\n", level.Price, level.Quantity, level.OrderCount)
	}
	fmt.Fprintf(&sb, "%s asks:\n", snap.Symbol)
	for _, level := range snap.Asks {
		fmt.Fprintf(&sb, "  %s x %s (%d)\n", level.Price, level.Quantity, level.OrderCount)
	}
	return sb.String()
}

// handleConnection is a short-lived worker task: read the next message
// off the connection, parse it and queue it for the session handler.
// The connection re-queues itself for the next message; a dead
// connection tears its session down.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Idle session, keep listening.
				s.pool.AddTask(conn)
				return nil
			}
			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("client disconnected")
			s.deleteSession(conn.RemoteAddr().String())
			if err := conn.Close(); err != nil {
				log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("close failed")
			}
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			s.reportError(conn.RemoteAddr().String(), err)
		} else {
			s.clientMessages <- ClientMessage{
				message:       message,
				clientAddress: conn.RemoteAddr().String(),
			}
		}

		// Push the connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addSession is an atomic map add.
func (s *Server) addSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = ClientSession{conn: conn}
}

// bindAccount routes future execution reports for the account to this
// session.
func (s *Server) bindAccount(account uuid.UUID, address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.accounts[account] = address
}

// deleteSession is an atomic map remove.
func (s *Server) deleteSession(address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, address)
}
