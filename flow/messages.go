package flow

import (
	"encoding/json"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

type MessageType string

const (
	MessageProposal  MessageType = "proposal"
	MessageSignature MessageType = "signature"
	MessageFinality  MessageType = "finality"
	MessageAbort     MessageType = "abort"
)

// Message is the envelope exchanged on a session. Exactly one body is set,
// matching Type.
type Message struct {
	Type     MessageType        `json:"type"`
	Proposal *Proposal          `json:"proposal,omitempty"`
	Response *SignatureResponse `json:"response,omitempty"`
	Finality *FinalityNotice    `json:"finality,omitempty"`
	Abort    *AbortNotice       `json:"abort,omitempty"`
}

// Proposal asks a counterparty to sign. Payload is the wire encoding of the
// candidate transaction; the responder rebuilds the transaction from it and
// checks it hashes to TxID.
type Proposal struct {
	TxID               ledger.Hash      `json:"tx_id"`
	Payload            json.RawMessage  `json:"payload"`
	InitiatorSignature ledger.Signature `json:"initiator_signature"`
	Outstanding        []ledger.PartyID `json:"outstanding"`
}

type Rejection struct {
	Code    failure.Code `json:"code"`
	Message string       `json:"message"`
}

// SignatureResponse carries either a signature or a rejection.
type SignatureResponse struct {
	TxID      ledger.Hash       `json:"tx_id"`
	Signature *ledger.Signature `json:"signature,omitempty"`
	Rejection *Rejection        `json:"rejection,omitempty"`
}

// FinalityNotice delivers the committed, fully signed transaction.
type FinalityNotice struct {
	TxID    ledger.Hash     `json:"tx_id"`
	Payload json.RawMessage `json:"payload"`
	Height  int64           `json:"height"`
}

// AbortNotice tells a responder the proposal is dead.
type AbortNotice struct {
	TxID   ledger.Hash  `json:"tx_id"`
	Code   failure.Code `json:"code"`
	Reason string       `json:"reason"`
}

func proposalMessage(p Proposal) Message { return Message{Type: MessageProposal, Proposal: &p} }

func signatureMessage(id ledger.Hash, sig ledger.Signature) Message {
	return Message{Type: MessageSignature, Response: &SignatureResponse{TxID: id, Signature: &sig}}
}

func rejectionMessage(id ledger.Hash, err error) Message {
	return Message{Type: MessageSignature, Response: &SignatureResponse{
		TxID:      id,
		Rejection: &Rejection{Code: failure.CodeOf(err), Message: err.Error()},
	}}
}

func finalityMessage(id ledger.Hash, payload []byte, height int64) Message {
	return Message{Type: MessageFinality, Finality: &FinalityNotice{TxID: id, Payload: payload, Height: height}}
}

func abortMessage(id ledger.Hash, err error) Message {
	return Message{Type: MessageAbort, Abort: &AbortNotice{TxID: id, Code: failure.CodeOf(err), Reason: err.Error()}}
}
