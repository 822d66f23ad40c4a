package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Hash is a transaction content hash, "sha256:<hex>".
type Hash string

// StateRef points at output Index of transaction TxID.
type StateRef struct {
	TxID  Hash `json:"tx_id"`
	Index int  `json:"index"`
}

func (r StateRef) String() string { return fmt.Sprintf("%s:%d", r.TxID, r.Index) }

func ParseStateRef(s string) (StateRef, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return StateRef{}, fmt.Errorf("invalid state ref %q", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return StateRef{}, fmt.Errorf("invalid state ref index %q", s)
	}
	return StateRef{TxID: Hash(s[:i]), Index: idx}, nil
}

// StateAndRef is a resolved input: the record and where it was produced.
type StateAndRef struct {
	Ref   StateRef
	State Record
}

// TimeWindow bounds when a transaction may be notarised. Either side may
// be open.
type TimeWindow struct {
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

func Between(from, until time.Time) *TimeWindow {
	f, u := from.UTC(), until.UTC()
	return &TimeWindow{From: &f, Until: &u}
}

func FromOnly(from time.Time) *TimeWindow {
	f := from.UTC()
	return &TimeWindow{From: &f}
}

func UntilOnly(until time.Time) *TimeWindow {
	u := until.UTC()
	return &TimeWindow{Until: &u}
}

// WithTolerance is the window [t-d, t+d].
func WithTolerance(t time.Time, d time.Duration) *TimeWindow {
	return Between(t.Add(-d), t.Add(d))
}

// Contains reports whether t falls inside the window (from inclusive,
// until exclusive).
func (w *TimeWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.Until != nil && !t.Before(*w.Until) {
		return false
	}
	return true
}

// Transaction is a candidate state transition. Treat it as immutable once
// it has been handed to verification or signing.
type Transaction struct {
	Nonce      string
	Notary     Party
	Inputs     []StateAndRef
	Outputs    []Record
	Commands   []Command
	TimeWindow *TimeWindow
}

// ID is the content hash over the wire encoding. Two parties decoding the
// same payload compute the same ID.
func (tx *Transaction) ID() Hash {
	b, err := Marshal(tx)
	if err != nil {
		panic("ledger: encode transaction: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return Hash("sha256:" + hex.EncodeToString(sum[:]))
}

func (tx *Transaction) InputStates() []Record {
	out := make([]Record, len(tx.Inputs))
	for i, in := range tx.Inputs {
		out[i] = in.State
	}
	return out
}

// OutRef returns the StateAndRef that output i will have once committed.
func (tx *Transaction) OutRef(i int) StateAndRef {
	return StateAndRef{Ref: StateRef{TxID: tx.ID(), Index: i}, State: tx.Outputs[i]}
}

// Participants of every record the transaction touches.
func (tx *Transaction) Participants() []Party {
	return Participants(append(tx.InputStates(), tx.Outputs...)...)
}

// RequiredSigners is the union of command signers, in first-seen order.
func (tx *Transaction) RequiredSigners() []Key {
	seen := make(map[Key]bool)
	var out []Key
	for _, c := range tx.Commands {
		for _, k := range c.Signers {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
