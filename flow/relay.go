package flow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Envelope carries one message of a relayed session between two parties.
// An envelope with Close set ends the sender's side of the session.
type Envelope struct {
	Session string         `json:"session"`
	From    ledger.PartyID `json:"from"`
	To      ledger.PartyID `json:"to"`
	Message *Message       `json:"message,omitempty"`
	Close   bool           `json:"close,omitempty"`
}

// Poster hands an envelope to the party it is addressed to. Post returns
// once the receiving relay has queued the envelope.
type Poster interface {
	Post(ctx context.Context, env Envelope) error
}

// Relay is a Network between processes. Outgoing messages are posted one
// envelope at a time; incoming envelopes arrive through Deliver. The first
// envelope of an unknown session must be a proposal, and starts the
// registered handler.
type Relay struct {
	me     ledger.PartyID
	poster Poster

	mu       sync.Mutex
	handler  Handler
	sessions map[string]*relaySession
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Network = (*Relay)(nil)

func NewRelay(me ledger.PartyID, poster Poster) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		me:       me,
		poster:   poster,
		sessions: make(map[string]*relaySession),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle sets the handler started for every incoming session.
func (r *Relay) Handle(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *Relay) OpenSession(ctx context.Context, to ledger.PartyID) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, failure.New(failure.CodeTransportFailure, "relay is closed")
	}
	return r.register(uuid.NewString(), to), nil
}

// register must be called with r.mu held.
func (r *Relay) register(id string, peer ledger.PartyID) *relaySession {
	s := &relaySession{
		relay: r,
		id:    id,
		peer:  peer,
		inbox: make(chan Message, sessionBuffer),
		done:  make(chan struct{}),
	}
	r.sessions[id] = s
	return s
}

func (r *Relay) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Deliver routes an incoming envelope to its session. It never blocks: a
// session whose inbox is full fails the delivery.
func (r *Relay) Deliver(env Envelope) error {
	if env.To != r.me {
		return failure.Newf(failure.CodeTransportFailure, "envelope for %s reached %s", env.To, r.me)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return failure.New(failure.CodeTransportFailure, "relay is closed")
	}
	s, ok := r.sessions[env.Session]
	if !ok {
		switch {
		case env.Close:
			r.mu.Unlock()
			return nil
		case r.handler == nil || env.Message == nil || env.Message.Type != MessageProposal:
			r.mu.Unlock()
			return failure.Newf(failure.CodeInvalidProposal, "no session %s with %s", env.Session, env.From)
		}
		s = r.register(env.Session, env.From)
		handler := r.handler
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer s.Close()
			_ = handler(r.ctx, s)
		}()
	}
	r.mu.Unlock()

	if s.peer != env.From {
		return failure.Newf(failure.CodeTransportFailure, "session %s belongs to %s, not %s", s.id, s.peer, env.From)
	}
	if env.Close {
		s.peerClosed()
		return nil
	}
	if env.Message == nil {
		return failure.Newf(failure.CodeInvalidProposal, "empty envelope on session %s", s.id)
	}
	return s.push(*env.Message)
}

// Wait blocks until every handler started so far has returned.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// Close refuses further envelopes, cancels running handlers and waits
// for them.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

type relaySession struct {
	relay *Relay
	id    string
	peer  ledger.PartyID
	inbox chan Message

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func (s *relaySession) Counterparty() ledger.PartyID { return s.peer }

func (s *relaySession) push(m Message) error {
	select {
	case <-s.done:
		return failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	default:
		return failure.Newf(failure.CodeTransportFailure, "session %s is not draining", s.id)
	}
}

func (s *relaySession) peerClosed() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *relaySession) Send(ctx context.Context, m Message) error {
	select {
	case <-s.done:
		return failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	default:
	}
	return s.relay.poster.Post(ctx, Envelope{Session: s.id, From: s.relay.me, To: s.peer, Message: &m})
}

func (s *relaySession) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-s.inbox:
		return m, nil
	case <-s.done:
		// Messages queued before the peer closed are still delivered.
		select {
		case m := <-s.inbox:
			return m, nil
		default:
		}
		return Message{}, failure.Newf(failure.CodeTransportFailure, "session %s closed by %s", s.id, s.peer)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close tells the peer the session is over. The notice is best effort.
func (s *relaySession) Close() error {
	s.closeOnce.Do(func() {
		s.relay.forget(s.id)
		ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
		defer cancel()
		_ = s.relay.poster.Post(ctx, Envelope{Session: s.id, From: s.relay.me, To: s.peer, Close: true})
	})
	return nil
}
