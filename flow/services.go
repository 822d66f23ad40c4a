// Package flow runs the multi-party signing protocol. An initiator verifies
// a candidate transaction, collects the signatures of every other
// participant, hands the result to the notary and records the commit. A
// responder re-verifies independently, applies its own policy, signs and
// waits for the notary's decision.
//
// Each proposal runs in its own goroutine and shares no mutable state with
// other proposals. Double-spend prevention is left to the Finality service.
package flow

import (
	"context"

	"github.com/gregorybednov/ledgerflow/ledger"
)

// Identity names the local party.
type Identity interface {
	Me() ledger.Party
}

// Signer signs transaction content hashes with the local key.
type Signer interface {
	Sign(id ledger.Hash) (ledger.Signature, error)
}

// Network opens point-to-point sessions to other parties.
type Network interface {
	OpenSession(ctx context.Context, to ledger.PartyID) (Session, error)
}

// Session is an ordered, reliable exchange with one counterparty.
type Session interface {
	Counterparty() ledger.PartyID
	Send(ctx context.Context, m Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Commit acknowledges that the notary made a transaction final.
type Commit struct {
	TxID   ledger.Hash `json:"tx_id"`
	Height int64       `json:"height"`
}

// Finality submits fully signed transactions to the notary and blocks until
// it commits or rejects them.
type Finality interface {
	Submit(ctx context.Context, stx *ledger.SignedTransaction) (Commit, error)
}

// Confirmer asks the notary whether it committed a transaction. When a
// node's Finality is also a Confirmer, responders check every finality
// notice with it before recording.
type Confirmer interface {
	Confirm(ctx context.Context, id ledger.Hash) (bool, error)
}

// NotaryResolver names the notary proposals must be addressed to.
type NotaryResolver interface {
	ResolveNotary() ledger.Party
}

// Vault is the local ledger view updated on commit.
type Vault interface {
	Record(stx *ledger.SignedTransaction) error
}

// StaticNotary always resolves to the same notary.
type StaticNotary ledger.Party

func (n StaticNotary) ResolveNotary() ledger.Party { return ledger.Party(n) }

// LocalIdentity is a party holding its own key.
type LocalIdentity struct {
	Party ledger.Party
	Keys  ledger.Keypair
}

func NewLocalIdentity(name ledger.PartyID, keys ledger.Keypair) LocalIdentity {
	return LocalIdentity{Party: keys.Party(name), Keys: keys}
}

func (l LocalIdentity) Me() ledger.Party { return l.Party }

func (l LocalIdentity) Sign(id ledger.Hash) (ledger.Signature, error) { return l.Keys.Sign(id) }
