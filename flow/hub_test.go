package flow

import (
	"context"
	"testing"
	"time"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

func TestHubDeliversInOrderAndDrainsAfterClose(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	hub.Register("echo", func(ctx context.Context, s Session) error {
		for i := 0; i < 3; i++ {
			m, err := s.Receive(ctx)
			if err != nil {
				return err
			}
			if err := s.Send(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})

	s, err := hub.Endpoint("client").OpenSession(context.Background(), "echo")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Counterparty() != "echo" {
		t.Fatalf("unexpected counterparty %s", s.Counterparty())
	}
	ids := []ledger.Hash{"sha256:a", "sha256:b", "sha256:c"}
	for _, id := range ids {
		if err := s.Send(context.Background(), Message{Type: MessageAbort, Abort: &AbortNotice{TxID: id}}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	hub.Wait()

	// The handler has returned and closed its side; buffered replies still arrive.
	for _, id := range ids {
		m, err := s.Receive(context.Background())
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if m.Abort == nil || m.Abort.TxID != id {
			t.Fatalf("expected %s, got %+v", id, m)
		}
	}
	if _, err := s.Receive(context.Background()); !failure.Has(err, failure.CodeTransportFailure) {
		t.Fatalf("expected transport failure after close, got %v", err)
	}
	if err := s.Send(context.Background(), Message{Type: MessageAbort}); !failure.Has(err, failure.CodeTransportFailure) {
		t.Fatalf("expected send to a closed peer to fail, got %v", err)
	}
}

func TestHubReceiveHonoursDeadline(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	hub.Register("mute", func(ctx context.Context, s Session) error {
		<-ctx.Done()
		return nil
	})
	s, err := hub.Endpoint("client").OpenSession(context.Background(), "mute")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Receive(ctx); failure.CodeOf(err) != failure.CodeProtocolTimeout {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}

func TestPolicies(t *testing.T) {
	notary := ledger.KeypairFromSeed("Notary").Party("Notary")
	lender := ledger.KeypairFromSeed("Lender").Party("Lender")
	borrower := ledger.KeypairFromSeed("Borrower").Party("Borrower")
	iou := func(v int64) *ledger.Transaction {
		return ledger.GenerateIOUCreate(notary, lender, borrower, v).Transaction()
	}
	cash := ledger.GenerateCashIssue(notary, lender.Ref(1), borrower, ledger.Dollars(1)).Transaction()

	limit := IOUValueCap(100)
	if err := limit.Check(iou(99)); err != nil {
		t.Fatalf("expected 99 to pass, got %v", err)
	}
	if err := limit.Check(iou(100)); !failure.Has(err, failure.CodePolicyRejection) {
		t.Fatalf("expected 100 to be refused, got %v", err)
	}

	onlyIOUs := RequireKinds(ledger.KindIOU)
	if err := onlyIOUs.Check(cash); err == nil || err.Error() != "Only iou transactions are signed." {
		t.Fatalf("expected cash to be refused, got %v", err)
	}

	chain := Policies{onlyIOUs, limit}
	if err := chain.Check(iou(150)); err == nil || err.Error() != "The IOU's value can't be too high." {
		t.Fatalf("expected the cap to refuse, got %v", err)
	}
	if err := chain.Check(iou(10)); err != nil {
		t.Fatalf("expected chain to accept, got %v", err)
	}
}

func TestRequiredCounterpartiesExcludeSelf(t *testing.T) {
	notary := ledger.KeypairFromSeed("Notary").Party("Notary")
	a := ledger.KeypairFromSeed("A").Party("A")
	b := ledger.KeypairFromSeed("B").Party("B")
	c := ledger.KeypairFromSeed("C").Party("C")
	tx := ledger.GenerateCashIssue(notary, b.Ref(1), c, ledger.Dollars(1)).
		AddOutput(ledger.Cash{Issuer: b.Ref(1), Owner: a, Amount: ledger.Dollars(1)}).
		AddOutput(ledger.Cash{Issuer: b.Ref(1), Owner: b, Amount: ledger.Dollars(1)}).
		Transaction()

	got := requiredCounterparties(tx, b)
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("expected [A C], got %v", got)
	}
}
