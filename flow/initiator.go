package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gregorybednov/ledgerflow/contract"
	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

const abortTimeout = time.Second

// Result is a finalized proposal.
type Result struct {
	Tx     *ledger.SignedTransaction
	Commit Commit
}

// Propose runs the initiator side of the protocol for tx. Every failure is
// terminal for this proposal; a retry must be a new transaction. When the
// notary committed but the local vault could not record the commit, both
// the Result and the error are returned.
func (n *Node) Propose(ctx context.Context, tx *ledger.Transaction) (*Result, error) {
	id := tx.ID()
	tr := n.track(RoleInitiator, id, StateBuilding)

	if err := contract.Verify(tx); err != nil {
		tr.to(StateAborted, err)
		return nil, err
	}
	if notary := n.Notary(); tx.Notary.Key != notary.Key {
		err := failure.Newf(failure.CodeInvalidProposal, "transaction names notary %s, expected %s", tx.Notary, notary)
		tr.to(StateAborted, err)
		return nil, err
	}
	tr.to(StateVerified, nil)

	payload, err := ledger.Marshal(tx)
	if err != nil {
		err = failure.Wrap(failure.CodeInvalidProposal, "encode transaction", err)
		tr.to(StateAborted, err)
		return nil, err
	}
	own, err := n.svc.Signer.Sign(id)
	if err != nil {
		tr.to(StateAborted, err)
		return nil, err
	}
	stx := &ledger.SignedTransaction{Tx: tx, Sigs: []ledger.Signature{own}}

	counterparties := requiredCounterparties(tx, n.Me())
	outstanding := make([]ledger.PartyID, len(counterparties))
	for i, p := range counterparties {
		outstanding[i] = p.Name
	}
	tr.to(StateAwaitingCounterSignatures, nil)

	sessions := make([]Session, len(counterparties))
	defer func() {
		for _, s := range sessions {
			if s != nil {
				s.Close()
			}
		}
	}()

	prop := Proposal{TxID: id, Payload: payload, InitiatorSignature: own, Outstanding: outstanding}
	sigs, err := n.collect(ctx, id, prop, counterparties, sessions)
	if err != nil {
		n.abort(id, sessions, err)
		tr.to(StateAborted, err)
		return nil, err
	}
	stx = stx.WithSignatures(sigs...)
	if missing := stx.MissingSigners(); len(missing) > 0 {
		err := failure.Newf(failure.CodeInvalidProposal, "no participant signs for %v", missing)
		n.abort(id, sessions, err)
		tr.to(StateAborted, err)
		return nil, err
	}
	signed, err := ledger.MarshalSigned(stx)
	if err != nil {
		err = failure.Wrap(failure.CodeInvalidProposal, "encode signed transaction", err)
		n.abort(id, sessions, err)
		tr.to(StateAborted, err)
		return nil, err
	}
	tr.to(StateReadyForFinality, nil)

	commit, err := n.svc.Finality.Submit(ctx, stx)
	if err != nil {
		n.abort(id, sessions, err)
		tr.to(StateAborted, err)
		return nil, err
	}

	// From here on the transaction is on the ledger: every counterparty
	// hears about it whatever happens locally.
	recordErr := n.record(stx)
	notice := finalityMessage(id, signed, commit.Height)
	for _, s := range sessions {
		if err := s.Send(ctx, notice); err != nil {
			n.logger.Error("finality notice not delivered", "tx", id, "to", s.Counterparty(), "err", err)
		}
	}
	tr.to(StateFinalized, nil)

	res := &Result{Tx: stx, Commit: commit}
	if recordErr != nil {
		n.logger.Error("committed transaction not recorded", "tx", id, "height", commit.Height, "err", recordErr)
		return res, failure.Wrap(failure.CodeUnknown, fmt.Sprintf("record committed transaction %s", id), recordErr)
	}
	return res, nil
}

// collect sends the proposal to every counterparty at once. The first
// rejection, timeout or broken session cancels the others.
func (n *Node) collect(ctx context.Context, id ledger.Hash, prop Proposal, parties []ledger.Party, sessions []Session) ([]ledger.Signature, error) {
	sigs := make([]ledger.Signature, len(parties))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parties {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, n.cfg.ResponseTimeout)
			defer cancel()

			s, err := n.svc.Network.OpenSession(rctx, p.Name)
			if err != nil {
				return classify(p.Name, err)
			}
			sessions[i] = s

			if err := s.Send(rctx, proposalMessage(prop)); err != nil {
				return classify(p.Name, err)
			}
			m, err := s.Receive(rctx)
			if err != nil {
				return classify(p.Name, err)
			}
			sig, err := checkResponse(id, p, m)
			if err != nil {
				return err
			}
			sigs[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sigs, nil
}

func checkResponse(id ledger.Hash, p ledger.Party, m Message) (ledger.Signature, error) {
	if m.Type != MessageSignature || m.Response == nil {
		return ledger.Signature{}, failure.Newf(failure.CodeInvalidProposal, "%s answered with %q", p.Name, m.Type)
	}
	resp := m.Response
	if resp.TxID != id {
		return ledger.Signature{}, failure.Newf(failure.CodeInvalidProposal, "%s answered for %s", p.Name, resp.TxID)
	}
	if resp.Rejection != nil {
		code := resp.Rejection.Code
		if code == "" {
			code = failure.CodeUnknown
		}
		return ledger.Signature{}, failure.New(code, resp.Rejection.Message).With("party", string(p.Name))
	}
	if resp.Signature == nil {
		return ledger.Signature{}, failure.Newf(failure.CodeInvalidProposal, "%s sent neither signature nor rejection", p.Name)
	}
	sig := *resp.Signature
	if sig.By != p.Key || !sig.Verify(id) {
		return ledger.Signature{}, failure.Newf(failure.CodeInvalidProposal, "signature from %s does not verify", p.Name)
	}
	return sig, nil
}

// abort tells every open session the proposal is dead. Delivery is best
// effort: a counterparty that already hung up is skipped.
func (n *Node) abort(id ledger.Hash, sessions []Session, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	msg := abortMessage(id, cause)
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, msg); err != nil {
			n.logger.Debug("abort notice not delivered", "tx", id, "to", s.Counterparty(), "err", err)
		}
	}
}

// requiredCounterparties are the participants of every touched record other
// than me, ordered by name.
func requiredCounterparties(tx *ledger.Transaction, me ledger.Party) []ledger.Party {
	var out []ledger.Party
	for _, p := range tx.Participants() {
		if p.Name != me.Name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// classify maps session errors onto the failure taxonomy.
func classify(party ledger.PartyID, err error) error {
	var fe *failure.Error
	switch {
	case errors.As(err, &fe):
		return fe.With("party", string(party))
	case errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.CodeProtocolTimeout, fmt.Sprintf("%s did not respond in time", party), err).With("party", string(party))
	default:
		return failure.Wrap(failure.CodeTransportFailure, fmt.Sprintf("session with %s failed", party), err).With("party", string(party))
	}
}
