package ledger

import (
	"encoding/json"
	"fmt"
)

type wireRecord struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type wireInput struct {
	Ref   StateRef   `json:"ref"`
	State wireRecord `json:"state"`
}

type wireTransaction struct {
	Nonce      string       `json:"nonce"`
	Notary     Party        `json:"notary"`
	Inputs     []wireInput  `json:"inputs"`
	Outputs    []wireRecord `json:"outputs"`
	Commands   []Command    `json:"commands"`
	TimeWindow *TimeWindow  `json:"time_window,omitempty"`
}

var decoders = map[Kind]func([]byte) (Record, error){
	KindCommercialPaper: decodeAs[CommercialPaper],
	KindIOU:             decodeAs[IOU],
	KindCash:            decodeAs[Cash],
	KindAgreement:       decodeAs[Agreement],
}

func decodeAs[T Record](b []byte) (Record, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toWireRecord(r Record) (wireRecord, error) {
	if r == nil {
		return wireRecord{}, fmt.Errorf("nil record")
	}
	if _, ok := decoders[r.Kind()]; !ok {
		return wireRecord{}, fmt.Errorf("unknown record kind %q", r.Kind())
	}
	data, err := json.Marshal(r)
	if err != nil {
		return wireRecord{}, err
	}
	return wireRecord{Kind: r.Kind(), Data: data}, nil
}

func fromWireRecord(w wireRecord) (Record, error) {
	dec, ok := decoders[w.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", w.Kind)
	}
	r, err := dec(w.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", w.Kind, err)
	}
	return r, nil
}

// MarshalRecord encodes a record with its kind tag.
func MarshalRecord(r Record) ([]byte, error) {
	w, err := toWireRecord(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func UnmarshalRecord(b []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	return fromWireRecord(w)
}

// Marshal produces the wire payload of a transaction. Empty and nil
// collections encode identically so the content hash survives a round trip.
func Marshal(tx *Transaction) ([]byte, error) {
	w := wireTransaction{
		Nonce:      tx.Nonce,
		Notary:     tx.Notary,
		Inputs:     make([]wireInput, 0, len(tx.Inputs)),
		Outputs:    make([]wireRecord, 0, len(tx.Outputs)),
		Commands:   make([]Command, 0, len(tx.Commands)),
		TimeWindow: tx.TimeWindow,
	}
	for _, in := range tx.Inputs {
		r, err := toWireRecord(in.State)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Ref, err)
		}
		w.Inputs = append(w.Inputs, wireInput{Ref: in.Ref, State: r})
	}
	for i, out := range tx.Outputs {
		r, err := toWireRecord(out)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		w.Outputs = append(w.Outputs, r)
	}
	for _, c := range tx.Commands {
		signers := make([]Key, len(c.Signers))
		copy(signers, c.Signers)
		w.Commands = append(w.Commands, Command{Kind: c.Kind, Verb: c.Verb, Signers: signers})
	}
	return json.Marshal(w)
}

func Unmarshal(b []byte) (*Transaction, error) {
	var w wireTransaction
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("invalid transaction JSON: %w", err)
	}
	tx := &Transaction{
		Nonce:      w.Nonce,
		Notary:     w.Notary,
		Inputs:     make([]StateAndRef, 0, len(w.Inputs)),
		Outputs:    make([]Record, 0, len(w.Outputs)),
		Commands:   w.Commands,
		TimeWindow: w.TimeWindow,
	}
	for _, in := range w.Inputs {
		r, err := fromWireRecord(in.State)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Ref, err)
		}
		tx.Inputs = append(tx.Inputs, StateAndRef{Ref: in.Ref, State: r})
	}
	for i, out := range w.Outputs {
		r, err := fromWireRecord(out)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		tx.Outputs = append(tx.Outputs, r)
	}
	return tx, nil
}
