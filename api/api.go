// Package api exposes a party's ledger view and flows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/contract"
	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/vault"
)

const maxBody = 1 << 20

// Store is the read side of a vault.
type Store interface {
	Unconsumed(kind ledger.Kind) ([]ledger.StateAndRef, error)
	Transaction(id ledger.Hash) (*ledger.SignedTransaction, error)
}

// Flows starts protocol instances on behalf of HTTP callers.
type Flows interface {
	CreateIOU(ctx context.Context, borrower ledger.Party, value int64) (*flow.Result, error)
}

type server struct {
	store  Store
	flows  Flows
	inbox  Inbox
	logger log.Logger
}

// NewRouter serves store. flows and inbox are optional: without flows no
// proposal can be started over HTTP, without inbox no envelope from another
// party is accepted.
func NewRouter(store Store, flows Flows, inbox Inbox, logger log.Logger) http.Handler {
	s := &server{store: store, flows: flows, inbox: inbox, logger: logger.With("module", "api")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/v1", func(api chi.Router) {
		api.Post("/verify", s.verify)
		api.Get("/vault/{kind}", s.listStates)
		api.Get("/tx/{id}", s.getTransaction)
		if flows != nil {
			api.Post("/iou", s.createIOU)
		}
		if inbox != nil {
			api.Post("/inbox", s.deliver)
		}
	})
	return r
}

type stateView struct {
	Ref   string          `json:"ref"`
	Kind  ledger.Kind     `json:"kind"`
	State json.RawMessage `json:"state"`
}

func (s *server) verify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, 400, "BAD_BODY", err.Error())
		return
	}
	tx, err := ledger.Unmarshal(body)
	if err != nil {
		writeError(w, 400, "BAD_JSON", err.Error())
		return
	}
	resp := map[string]any{"request_id": newRequestID(), "tx_id": tx.ID(), "ok": true}
	if err := contract.Verify(tx); err != nil {
		resp["ok"] = false
		resp["code"] = failure.CodeOf(err)
		resp["message"] = err.Error()
	}
	writeJSON(w, 200, resp)
}

func (s *server) listStates(w http.ResponseWriter, r *http.Request) {
	kind := ledger.Kind(chi.URLParam(r, "kind"))
	if kind == "all" {
		kind = ""
	}
	states, err := s.store.Unconsumed(kind)
	if err != nil {
		writeError(w, 500, "VAULT_ERROR", err.Error())
		return
	}
	views := make([]stateView, 0, len(states))
	for _, st := range states {
		raw, err := ledger.MarshalRecord(st.State)
		if err != nil {
			writeError(w, 500, "ENCODE_ERROR", err.Error())
			return
		}
		views = append(views, stateView{Ref: st.Ref.String(), Kind: st.State.Kind(), State: raw})
	}
	writeJSON(w, 200, map[string]any{"request_id": newRequestID(), "states": views})
}

func (s *server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.Hash(chi.URLParam(r, "id"))
	stx, err := s.store.Transaction(id)
	if errors.Is(err, vault.ErrNotFound) {
		writeError(w, 404, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, "VAULT_ERROR", err.Error())
		return
	}
	raw, err := ledger.MarshalSigned(stx)
	if err != nil {
		writeError(w, 500, "ENCODE_ERROR", err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"request_id": newRequestID(), "transaction": json.RawMessage(raw)})
}

func (s *server) createIOU(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Borrower ledger.Party `json:"borrower"`
		Value    int64        `json:"value"`
	}
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxBody), &req); err != nil {
		writeError(w, 400, "BAD_JSON", err.Error())
		return
	}
	if _, err := ledger.ParseKey(string(req.Borrower.Key)); err != nil || req.Borrower.Name == "" {
		writeError(w, 400, "BAD_PARTY", "borrower needs a name and a hex ed25519 key")
		return
	}
	res, err := s.flows.CreateIOU(r.Context(), req.Borrower, req.Value)
	if err != nil {
		s.logger.Info("IOU not created", "borrower", req.Borrower.Name, "value", req.Value, "err", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, map[string]any{
		"request_id": newRequestID(),
		"tx_id":      res.Commit.TxID,
		"height":     res.Commit.Height,
	})
}

func (s *server) deliver(w http.ResponseWriter, r *http.Request) {
	var env flow.Envelope
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxBody), &env); err != nil {
		writeError(w, 400, "BAD_JSON", err.Error())
		return
	}
	if err := s.inbox.Deliver(env); err != nil {
		s.logger.Debug("envelope refused", "session", env.Session, "from", env.From, "err", err)
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
