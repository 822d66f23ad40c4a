package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/gregorybednov/ledgerflow/contract"
	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Serve registers the node as a responder on the hub.
func (n *Node) Serve(h *Hub) {
	h.Register(n.Me().Name, n.Respond)
}

// Respond runs the responder side of one proposal arriving on s. It returns
// nil once the transaction is committed and recorded locally.
func (n *Node) Respond(ctx context.Context, s Session) error {
	defer s.Close()
	tr := n.track(RoleResponder, "", StateAwaitingProposal)

	pctx, cancel := context.WithTimeout(ctx, n.cfg.ResponseTimeout)
	m, err := s.Receive(pctx)
	cancel()
	if err != nil {
		err = classify(s.Counterparty(), err)
		tr.to(StateRejected, err)
		return err
	}
	if m.Type != MessageProposal || m.Proposal == nil {
		err := failure.Newf(failure.CodeInvalidProposal, "expected a proposal, got %q", m.Type)
		tr.to(StateRejected, err)
		return err
	}
	prop := m.Proposal

	tr.txID = prop.TxID
	tx, err := ledger.Unmarshal(prop.Payload)
	if err != nil {
		err = failure.Wrap(failure.CodeInvalidProposal, err.Error(), err)
		tr.to(StateRejected, err)
		n.send(ctx, s, rejectionMessage(prop.TxID, err))
		return err
	}
	id := tx.ID()
	if id != prop.TxID {
		err := failure.Newf(failure.CodeInvalidProposal, "payload hashes to %s, not %s", id, prop.TxID)
		tr.to(StateRejected, err)
		n.send(ctx, s, rejectionMessage(prop.TxID, err))
		return err
	}
	tr.to(StateLocallyVerifying, nil)

	if err := n.vet(tx, id, prop, s.Counterparty()); err != nil {
		tr.to(StateRejected, err)
		n.send(ctx, s, rejectionMessage(id, err))
		return err
	}

	sig, err := n.svc.Signer.Sign(id)
	if err != nil {
		tr.to(StateRejected, err)
		n.send(ctx, s, rejectionMessage(id, err))
		return err
	}
	if err := s.Send(ctx, signatureMessage(id, sig)); err != nil {
		err = classify(s.Counterparty(), err)
		tr.to(StateRejected, err)
		return err
	}
	tr.to(StateSigned, nil)
	tr.to(StateAwaitingFinality, nil)

	stx, err := n.awaitFinality(ctx, s, id)
	if err == nil {
		err = n.confirm(ctx, id)
	}
	if err != nil {
		tr.to(StateAborted, err)
		return err
	}
	if err := n.record(stx); err != nil {
		err = failure.Wrap(failure.CodeUnknown, fmt.Sprintf("record committed transaction %s", id), err)
		tr.to(StateAborted, err)
		return err
	}
	tr.to(StateCommitted, nil)
	return nil
}

// vet decides whether to sign. The contracts are re-run here: the
// initiator's own verification is never trusted.
func (n *Node) vet(tx *ledger.Transaction, id ledger.Hash, prop *Proposal, from ledger.PartyID) error {
	if !prop.InitiatorSignature.Verify(id) {
		return failure.Newf(failure.CodeInvalidProposal, "initiator signature from %s does not verify", from)
	}
	if err := contract.Verify(tx); err != nil {
		return err
	}
	if notary := n.Notary(); tx.Notary.Key != notary.Key {
		return failure.Newf(failure.CodeInvalidProposal, "transaction names notary %s, expected %s", tx.Notary, notary)
	}
	me := n.Me()
	participant := false
	for _, p := range tx.Participants() {
		if p.Name == me.Name {
			participant = p.Key == me.Key
		}
		if p.Name == from && p.Key != prop.InitiatorSignature.By {
			return failure.Newf(failure.CodeInvalidProposal, "proposal from %s is signed by another key", from)
		}
	}
	if !participant {
		return failure.Newf(failure.CodeInvalidProposal, "%s is not a participant", me.Name)
	}
	if err := n.policy.Check(tx); err != nil {
		if failure.CodeOf(err) != failure.CodePolicyRejection {
			err = failure.Wrap(failure.CodePolicyRejection, err.Error(), err)
		}
		return err
	}
	return nil
}

func (n *Node) awaitFinality(ctx context.Context, s Session, id ledger.Hash) (*ledger.SignedTransaction, error) {
	fctx, cancel := context.WithTimeout(ctx, n.cfg.FinalityTimeout)
	defer cancel()
	m, err := s.Receive(fctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failure.Wrap(failure.CodeProtocolTimeout, fmt.Sprintf("no commit for %s", id), err)
		}
		return nil, classify(s.Counterparty(), err)
	}

	switch m.Type {
	case MessageAbort:
		if m.Abort == nil {
			return nil, failure.New(failure.CodeInvalidProposal, "empty abort notice")
		}
		code := m.Abort.Code
		if code == "" {
			code = failure.CodeUnknown
		}
		return nil, failure.New(code, m.Abort.Reason)
	case MessageFinality:
		if m.Finality == nil {
			return nil, failure.New(failure.CodeInvalidProposal, "empty finality notice")
		}
		stx, err := ledger.UnmarshalSigned(m.Finality.Payload)
		if err != nil {
			return nil, failure.Wrap(failure.CodeInvalidProposal, err.Error(), err)
		}
		if stx.ID() != id || m.Finality.TxID != id {
			return nil, failure.Newf(failure.CodeInvalidProposal, "finality notice for %s, signed %s", m.Finality.TxID, id)
		}
		if err := stx.VerifyRequiredSignatures(); err != nil {
			return nil, failure.Wrap(failure.CodeInvalidProposal, err.Error(), err)
		}
		if !stx.SignedBy(n.Me().Key) {
			return nil, failure.Newf(failure.CodeInvalidProposal, "committed %s lacks our signature", id)
		}
		return stx, nil
	default:
		return nil, failure.Newf(failure.CodeInvalidProposal, "expected finality, got %q", m.Type)
	}
}

// confirm checks with the notary that id was committed, when the finality
// service can answer that.
func (n *Node) confirm(ctx context.Context, id ledger.Hash) error {
	c, ok := n.svc.Finality.(Confirmer)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, n.cfg.FinalityTimeout)
	defer cancel()
	committed, err := c.Confirm(cctx, id)
	if err != nil {
		if failure.CodeOf(err) == failure.CodeUnknown {
			err = failure.Wrap(failure.CodeTransportFailure, "ask the notary about "+string(id), err)
		}
		return err
	}
	if !committed {
		return failure.Newf(failure.CodeNotaryRejection, "the notary has not committed %s", id)
	}
	return nil
}

func (n *Node) send(ctx context.Context, s Session, m Message) {
	if err := s.Send(ctx, m); err != nil {
		n.logger.Debug("message not delivered", "to", s.Counterparty(), "type", m.Type, "err", err)
	}
}
