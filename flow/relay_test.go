package flow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/vault"
)

// loopback posts envelopes straight into the addressed relay.
type loopback struct {
	mu     sync.Mutex
	relays map[ledger.PartyID]*flow.Relay
}

func (l *loopback) Post(_ context.Context, env flow.Envelope) error {
	l.mu.Lock()
	r, ok := l.relays[env.To]
	l.mu.Unlock()
	if !ok {
		return failure.Newf(failure.CodeTransportFailure, "no route to %s", env.To)
	}
	return r.Deliver(env)
}

func (net *network) relayParty(lb *loopback, name ledger.PartyID) party {
	t := net.t
	t.Helper()
	v, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { v.Close() })

	relay := flow.NewRelay(name, lb)
	t.Cleanup(relay.Close)
	lb.mu.Lock()
	lb.relays[name] = relay
	lb.mu.Unlock()

	id := flow.NewLocalIdentity(name, ledger.KeypairFromSeed(string(name)))
	node, err := flow.NewNode(flow.Services{
		Identity: id,
		Signer:   id,
		Network:  relay,
		Finality: net.finality,
		Notary:   flow.StaticNotary(net.notary),
		Vault:    v,
	}, flow.WithClock(net.clock.Now), flow.WithObserver(net.observer))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	relay.Handle(node.Respond)
	return party{Node: node, vault: v}
}

func TestIOUOverRelay(t *testing.T) {
	net := newNetwork(t)
	lb := &loopback{relays: make(map[ledger.PartyID]*flow.Relay)}
	lender := net.relayParty(lb, "Lender")
	borrower := net.relayParty(lb, "Borrower")

	res, err := lender.CreateIOU(context.Background(), borrower.Me(), 25)
	if err != nil {
		t.Fatalf("create IOU: %v", err)
	}
	if len(res.Tx.Sigs) != 2 {
		t.Fatalf("expected two signatures, got %d", len(res.Tx.Sigs))
	}
	last := net.observer.await(t, "Borrower", flow.RoleResponder)
	if last.To != flow.StateCommitted {
		t.Fatalf("expected the borrower to commit, got %s (%v)", last.To, last.Err)
	}
	if len(ious(t, borrower.vault)) != 1 || len(ious(t, lender.vault)) != 1 {
		t.Fatalf("expected both vaults to hold the IOU")
	}
}

func TestRelayRefusesStrayEnvelopes(t *testing.T) {
	relay := flow.NewRelay("Borrower", &loopback{relays: map[ledger.PartyID]*flow.Relay{}})
	defer relay.Close()
	relay.Handle(func(ctx context.Context, s flow.Session) error { return nil })

	misaddressed := flow.Envelope{Session: "s1", From: "Lender", To: "Other", Message: &flow.Message{Type: flow.MessageProposal}}
	if err := relay.Deliver(misaddressed); !failure.Has(err, failure.CodeTransportFailure) {
		t.Fatalf("expected a misaddressed envelope to fail, got %v", err)
	}
	notice := flow.Envelope{Session: "s2", From: "Lender", To: "Borrower", Message: &flow.Message{Type: flow.MessageFinality}}
	if err := relay.Deliver(notice); !failure.Has(err, failure.CodeInvalidProposal) {
		t.Fatalf("expected a notice for an unknown session to fail, got %v", err)
	}
	if err := relay.Deliver(flow.Envelope{Session: "s3", From: "Lender", To: "Borrower", Close: true}); err != nil {
		t.Fatalf("closing an unknown session: %v", err)
	}
}
