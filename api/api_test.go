package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/vault"
)

var (
	notary   = ledger.KeypairFromSeed("Notary").Party("Notary")
	lender   = ledger.KeypairFromSeed("Lender").Party("Lender")
	borrower = ledger.KeypairFromSeed("Borrower").Party("Borrower")
)

type memStore struct {
	states []ledger.StateAndRef
	txs    map[ledger.Hash]*ledger.SignedTransaction
}

func (m *memStore) Unconsumed(kind ledger.Kind) ([]ledger.StateAndRef, error) {
	var out []ledger.StateAndRef
	for _, s := range m.states {
		if kind == "" || s.State.Kind() == kind {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Transaction(id ledger.Hash) (*ledger.SignedTransaction, error) {
	if stx, ok := m.txs[id]; ok {
		return stx, nil
	}
	return nil, fmt.Errorf("transaction %s: %w", id, vault.ErrNotFound)
}

type stubFlows struct {
	err   error
	value int64
}

func (s *stubFlows) CreateIOU(_ context.Context, _ ledger.Party, value int64) (*flow.Result, error) {
	s.value = value
	if s.err != nil {
		return nil, s.err
	}
	return &flow.Result{Commit: flow.Commit{TxID: "sha256:done", Height: 3}}, nil
}

func newStore() (*memStore, *ledger.Transaction) {
	tx := ledger.GenerateIOUCreate(notary, lender, borrower, 40).Transaction()
	return &memStore{
		states: []ledger.StateAndRef{tx.OutRef(0)},
		txs:    map[ledger.Hash]*ledger.SignedTransaction{tx.ID(): {Tx: tx}},
	}, tx
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	store, _ := newStore()
	rec, _ := do(t, NewRouter(store, nil, nil, log.NewNopLogger()), "GET", "/health", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestVerify(t *testing.T) {
	store, _ := newStore()
	h := NewRouter(store, nil, nil, log.NewNopLogger())

	good, _ := ledger.Marshal(ledger.GenerateIOUCreate(notary, lender, borrower, 5).Transaction())
	rec, out := do(t, h, "POST", "/v1/verify", good)
	if rec.Code != 200 || out["ok"] != true {
		t.Fatalf("expected ok, got %d %v", rec.Code, out)
	}

	bad, _ := ledger.Marshal(ledger.GenerateIOUCreate(notary, lender, lender, 5).Transaction())
	rec, out = do(t, h, "POST", "/v1/verify", bad)
	if rec.Code != 200 || out["ok"] != false || out["code"] != string(failure.CodeContractViolation) {
		t.Fatalf("expected contract violation, got %d %v", rec.Code, out)
	}
	if out["message"] != "The lender and the borrower cannot be the same entity." {
		t.Fatalf("unexpected message %v", out["message"])
	}

	rec, _ = do(t, h, "POST", "/v1/verify", []byte("{"))
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVaultAndTransaction(t *testing.T) {
	store, tx := newStore()
	h := NewRouter(store, nil, nil, log.NewNopLogger())

	rec, out := do(t, h, "GET", "/v1/vault/iou", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if states := out["states"].([]any); len(states) != 1 {
		t.Fatalf("expected one state, got %v", states)
	}
	_, out = do(t, h, "GET", "/v1/vault/cash", nil)
	if states := out["states"].([]any); len(states) != 0 {
		t.Fatalf("expected no cash, got %v", states)
	}

	rec, _ = do(t, h, "GET", "/v1/tx/"+string(tx.ID()), nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec, out = do(t, h, "GET", "/v1/tx/sha256:missing", nil)
	if rec.Code != 404 || out["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %v", rec.Code, out)
	}
}

func TestCreateIOU(t *testing.T) {
	store, _ := newStore()
	body, _ := json.Marshal(map[string]any{"borrower": borrower, "value": 50})

	if rec, _ := do(t, NewRouter(store, nil, nil, log.NewNopLogger()), "POST", "/v1/iou", body); rec.Code != 404 && rec.Code != 405 {
		t.Fatalf("expected no IOU route without flows, got %d", rec.Code)
	}

	flows := &stubFlows{}
	rec, out := do(t, NewRouter(store, flows, nil, log.NewNopLogger()), "POST", "/v1/iou", body)
	if rec.Code != 201 || out["tx_id"] != "sha256:done" || flows.value != 50 {
		t.Fatalf("expected 201, got %d %v", rec.Code, out)
	}

	refused := &stubFlows{err: failure.New(failure.CodePolicyRejection, "The IOU's value can't be too high.")}
	rec, out = do(t, NewRouter(store, refused, nil, log.NewNopLogger()), "POST", "/v1/iou", body)
	if rec.Code != 422 || out["error"].(map[string]any)["code"] != string(failure.CodePolicyRejection) {
		t.Fatalf("expected 422 policy rejection, got %d %v", rec.Code, out)
	}

	conflict := &stubFlows{err: failure.New(failure.CodeConflictingConsumption, "input consumed")}
	if rec, _ := do(t, NewRouter(store, conflict, nil, log.NewNopLogger()), "POST", "/v1/iou", body); rec.Code != 409 {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	noKey, _ := json.Marshal(map[string]any{"borrower": map[string]string{"name": "Borrower"}, "value": 50})
	if rec, _ := do(t, NewRouter(store, flows, nil, log.NewNopLogger()), "POST", "/v1/iou", noKey); rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryableFailuresCarryRetryAfter(t *testing.T) {
	store, _ := newStore()
	body, _ := json.Marshal(map[string]any{"borrower": borrower, "value": 50})

	timeout := &stubFlows{err: failure.New(failure.CodeProtocolTimeout, "Borrower did not respond in time")}
	rec, _ := do(t, NewRouter(store, timeout, nil, log.NewNopLogger()), "POST", "/v1/iou", body)
	if rec.Code != 504 || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 504 with Retry-After, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	conflict := &stubFlows{err: failure.New(failure.CodeConflictingConsumption, "input consumed")}
	rec, _ = do(t, NewRouter(store, conflict, nil, log.NewNopLogger()), "POST", "/v1/iou", body)
	if rec.Header().Get("Retry-After") != "" {
		t.Fatalf("a conflict must not invite a blind retry")
	}
}

type stubInbox struct {
	got flow.Envelope
	err error
}

func (s *stubInbox) Deliver(env flow.Envelope) error {
	s.got = env
	return s.err
}

func TestInbox(t *testing.T) {
	store, _ := newStore()
	env := flow.Envelope{Session: "s1", From: "Lender", To: "Borrower", Close: true}
	body, _ := json.Marshal(env)

	if rec, _ := do(t, NewRouter(store, nil, nil, log.NewNopLogger()), "POST", "/v1/inbox", body); rec.Code != 404 && rec.Code != 405 {
		t.Fatalf("expected no inbox route without an inbox, got %d", rec.Code)
	}

	inbox := &stubInbox{}
	rec, _ := do(t, NewRouter(store, nil, inbox, log.NewNopLogger()), "POST", "/v1/inbox", body)
	if rec.Code != 202 || inbox.got != env {
		t.Fatalf("expected 202 and the envelope delivered, got %d %+v", rec.Code, inbox.got)
	}

	stray := &stubInbox{err: failure.New(failure.CodeInvalidProposal, "no session s1 with Lender")}
	if rec, _ := do(t, NewRouter(store, nil, stray, log.NewNopLogger()), "POST", "/v1/inbox", body); rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec, _ := do(t, NewRouter(store, nil, inbox, log.NewNopLogger()), "POST", "/v1/inbox", []byte("{")); rec.Code != 400 {
		t.Fatalf("expected 400 for a broken body, got %d", rec.Code)
	}
}
