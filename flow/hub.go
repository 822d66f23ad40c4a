package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

const sessionBuffer = 8

// Handler serves the responder side of an incoming session.
type Handler func(ctx context.Context, s Session) error

// Hub is an in-process network. Every OpenSession starts the target's
// handler in its own goroutine. Messages are JSON encoded on the way through
// so that nothing is shared between parties by reference.
type Hub struct {
	mu       sync.Mutex
	handlers map[ledger.PartyID]Handler
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{handlers: make(map[ledger.PartyID]Handler), ctx: ctx, cancel: cancel}
}

// Register makes party reachable. A later registration replaces the handler.
func (h *Hub) Register(party ledger.PartyID, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[party] = handler
}

// Endpoint is the Network view of the hub for party.
func (h *Hub) Endpoint(party ledger.PartyID) Network {
	return endpoint{hub: h, self: party}
}

// Wait blocks until every handler started so far has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// Close cancels running handlers and waits for them.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

type endpoint struct {
	hub  *Hub
	self ledger.PartyID
}

func (e endpoint) OpenSession(ctx context.Context, to ledger.PartyID) (Session, error) {
	e.hub.mu.Lock()
	handler, ok := e.hub.handlers[to]
	e.hub.mu.Unlock()
	if !ok {
		return nil, failure.Newf(failure.CodeTransportFailure, "no route to %s", to)
	}
	if err := e.hub.ctx.Err(); err != nil {
		return nil, failure.Wrap(failure.CodeTransportFailure, "network is closed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	up, down := newPipe(), newPipe()
	local := &session{id: id, peer: to, out: up, in: down}
	remote := &session{id: id, peer: e.self, out: down, in: up}

	e.hub.wg.Add(1)
	go func() {
		defer e.hub.wg.Done()
		defer remote.Close()
		_ = handler(e.hub.ctx, remote)
	}()
	return local, nil
}

type pipe struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipe() *pipe {
	return &pipe{ch: make(chan []byte, sessionBuffer), closed: make(chan struct{})}
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.closed) })
}

type session struct {
	id   string
	peer ledger.PartyID
	out  *pipe
	in   *pipe
}

func (s *session) Counterparty() ledger.PartyID { return s.peer }

func (s *session) Send(ctx context.Context, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return failure.Wrap(failure.CodeTransportFailure, "encode message", err)
	}
	select {
	case <-s.out.closed:
		return failure.Newf(failure.CodeTransportFailure, "session %s is closed", s.id)
	case <-s.in.closed:
		return failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	default:
	}
	select {
	case s.out.ch <- b:
		return nil
	case <-s.in.closed:
		return failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Receive(ctx context.Context) (Message, error) {
	select {
	case b := <-s.in.ch:
		return decodeMessage(b)
	case <-s.in.closed:
		// Messages sent before the peer closed are still delivered.
		select {
		case b := <-s.in.ch:
			return decodeMessage(b)
		default:
		}
		return Message{}, failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *session) Close() error {
	s.out.close()
	return nil
}

func decodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, failure.Wrap(failure.CodeTransportFailure, fmt.Sprintf("decode message: %v", err), err)
	}
	return m, nil
}
