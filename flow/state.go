package flow

import (
	"github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/ledger"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

type State string

// Initiator states.
const (
	StateBuilding                  State = "Building"
	StateVerified                  State = "Verified"
	StateAwaitingCounterSignatures State = "AwaitingCounterSignatures"
	StateReadyForFinality          State = "ReadyForFinality"
	StateFinalized                 State = "Finalized"
	StateAborted                   State = "Aborted"
)

// Responder states. A responder whose proposal dies after signing ends in
// StateAborted.
const (
	StateAwaitingProposal State = "AwaitingProposal"
	StateLocallyVerifying State = "LocallyVerifying"
	StateSigned           State = "Signed"
	StateRejected         State = "Rejected"
	StateAwaitingFinality State = "AwaitingFinality"
	StateCommitted        State = "Committed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateAborted, StateRejected, StateCommitted:
		return true
	}
	return false
}

// Transition is one step of a protocol instance.
type Transition struct {
	Party ledger.PartyID
	Role  Role
	TxID  ledger.Hash
	From  State
	To    State
	Err   error
}

// Observer receives every transition. It is called from protocol
// goroutines and must be safe for concurrent use.
type Observer interface {
	Observe(t Transition)
}

type ObserverFunc func(t Transition)

func (f ObserverFunc) Observe(t Transition) { f(t) }

// tracker follows one protocol instance.
type tracker struct {
	party    ledger.PartyID
	role     Role
	txID     ledger.Hash
	state    State
	logger   log.Logger
	observer Observer
}

func (t *tracker) to(next State, err error) {
	tr := Transition{Party: t.party, Role: t.role, TxID: t.txID, From: t.state, To: next, Err: err}
	t.state = next
	if err != nil {
		t.logger.Info("protocol transition", "role", t.role, "tx", t.txID, "from", tr.From, "to", next, "err", err)
	} else {
		t.logger.Debug("protocol transition", "role", t.role, "tx", t.txID, "from", tr.From, "to", next)
	}
	if t.observer != nil {
		t.observer.Observe(tr)
	}
}
