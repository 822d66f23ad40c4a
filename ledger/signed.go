package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingSignature = errors.New("missing signature")
)

// Signature is one party's signature over a transaction content hash.
type Signature struct {
	By    Key    `json:"by"`
	Bytes []byte `json:"bytes"`
}

func (s Signature) Verify(id Hash) bool {
	return s.By.Verify([]byte(id), s.Bytes)
}

// SignedTransaction is a transaction with the signatures collected so far.
type SignedTransaction struct {
	Tx   *Transaction
	Sigs []Signature
}

func (s *SignedTransaction) ID() Hash { return s.Tx.ID() }

// WithSignatures returns a copy carrying the extra signatures. A key that
// already signed is not added twice.
func (s *SignedTransaction) WithSignatures(sigs ...Signature) *SignedTransaction {
	out := &SignedTransaction{Tx: s.Tx, Sigs: append([]Signature(nil), s.Sigs...)}
	for _, sig := range sigs {
		if !out.SignedBy(sig.By) {
			out.Sigs = append(out.Sigs, sig)
		}
	}
	return out
}

func (s *SignedTransaction) SignedBy(k Key) bool {
	for _, sig := range s.Sigs {
		if sig.By == k {
			return true
		}
	}
	return false
}

// MissingSigners lists required command signers with no signature yet.
func (s *SignedTransaction) MissingSigners() []Key {
	var missing []Key
	for _, k := range s.Tx.RequiredSigners() {
		if !s.SignedBy(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// VerifySignatures checks every attached signature against the content hash.
func (s *SignedTransaction) VerifySignatures() error {
	id := s.ID()
	for _, sig := range s.Sigs {
		if !sig.Verify(id) {
			return fmt.Errorf("%w by %s", ErrInvalidSignature, sig.By)
		}
	}
	return nil
}

// VerifyRequiredSignatures also demands a signature from every command signer.
func (s *SignedTransaction) VerifyRequiredSignatures() error {
	if err := s.VerifySignatures(); err != nil {
		return err
	}
	if missing := s.MissingSigners(); len(missing) > 0 {
		return fmt.Errorf("%w from %v", ErrMissingSignature, missing)
	}
	return nil
}

type wireSigned struct {
	Tx   json.RawMessage `json:"tx"`
	Sigs []Signature     `json:"sigs"`
}

func MarshalSigned(s *SignedTransaction) ([]byte, error) {
	tx, err := Marshal(s.Tx)
	if err != nil {
		return nil, err
	}
	sigs := s.Sigs
	if sigs == nil {
		sigs = []Signature{}
	}
	return json.Marshal(wireSigned{Tx: tx, Sigs: sigs})
}

func UnmarshalSigned(b []byte) (*SignedTransaction, error) {
	var w wireSigned
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("invalid signed transaction JSON: %w", err)
	}
	if len(w.Tx) == 0 {
		return nil, errors.New("missing tx")
	}
	tx, err := Unmarshal(w.Tx)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Tx: tx, Sigs: w.Sigs}, nil
}
