// Package vault is a party's local view of the ledger, kept in badger.
// It only ever sees committed transactions.
package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger"

	"github.com/gregorybednov/ledgerflow/ledger"
)

var ErrNotFound = errors.New("not found")

const (
	txPrefix       = "tx:"
	statePrefix    = "state:"
	consumedPrefix = "consumed:"
)

func txKey(id ledger.Hash) []byte { return []byte(txPrefix + string(id)) }

func stateKey(ref ledger.StateRef) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", statePrefix, ref.TxID, ref.Index))
}

func consumedKey(ref ledger.StateRef) []byte { return []byte(consumedPrefix + ref.String()) }

type Vault struct {
	db    *badger.DB
	owned bool
}

// Open opens or creates a vault in dir.
func Open(dir string) (*Vault, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithTruncate(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", dir, err)
	}
	return &Vault{db: db, owned: true}, nil
}

// New wraps an already open database. Close leaves it open.
func New(db *badger.DB) *Vault {
	return &Vault{db: db}
}

func (v *Vault) Close() error {
	if !v.owned {
		return nil
	}
	return v.db.Close()
}

// Record stores a committed transaction: its outputs become unconsumed
// states and its inputs are marked consumed, all in one badger transaction.
// Recording the same transaction again changes nothing.
func (v *Vault) Record(stx *ledger.SignedTransaction) error {
	return v.db.Update(func(txn *badger.Txn) error {
		return Apply(txn, stx)
	})
}

// Apply writes stx into txn using the vault's key layout. The notary uses it
// to build its block batch.
func Apply(txn *badger.Txn, stx *ledger.SignedTransaction) error {
	id := stx.ID()
	if ok, err := HasTransaction(txn, id); err != nil || ok {
		return err
	}
	raw, err := ledger.MarshalSigned(stx)
	if err != nil {
		return err
	}
	if err := txn.Set(txKey(id), raw); err != nil {
		return err
	}
	for _, in := range stx.Tx.Inputs {
		if err := txn.Set(consumedKey(in.Ref), []byte(id)); err != nil {
			return err
		}
	}
	for i, out := range stx.Tx.Outputs {
		b, err := ledger.MarshalRecord(out)
		if err != nil {
			return err
		}
		if err := txn.Set(stateKey(ledger.StateRef{TxID: id, Index: i}), b); err != nil {
			return err
		}
	}
	return nil
}

func HasTransaction(txn *badger.Txn, id ledger.Hash) (bool, error) {
	_, err := txn.Get(txKey(id))
	switch err {
	case nil:
		return true, nil
	case badger.ErrKeyNotFound:
		return false, nil
	default:
		return false, err
	}
}

// LookupState reads the record stored at ref, consumed or not.
func LookupState(txn *badger.Txn, ref ledger.StateRef) (ledger.Record, error) {
	item, err := txn.Get(stateKey(ref))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("state %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r ledger.Record
	err = item.Value(func(b []byte) error {
		r, err = ledger.UnmarshalRecord(b)
		return err
	})
	return r, err
}

// ConsumedBy returns the transaction that consumed ref, if any.
func ConsumedBy(txn *badger.Txn, ref ledger.StateRef) (ledger.Hash, bool, error) {
	item, err := txn.Get(consumedKey(ref))
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var by ledger.Hash
	err = item.Value(func(b []byte) error {
		by = ledger.Hash(b)
		return nil
	})
	return by, true, err
}

// Transaction returns a recorded transaction.
func (v *Vault) Transaction(id ledger.Hash) (*ledger.SignedTransaction, error) {
	var stx *ledger.SignedTransaction
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(b []byte) error {
			stx, err = ledger.UnmarshalSigned(b)
			return err
		})
	})
	return stx, err
}

// State returns the record at ref and whether it has been consumed.
func (v *Vault) State(ref ledger.StateRef) (ledger.StateAndRef, bool, error) {
	var (
		out      ledger.StateAndRef
		consumed bool
	)
	err := v.db.View(func(txn *badger.Txn) error {
		r, err := LookupState(txn, ref)
		if err != nil {
			return err
		}
		out = ledger.StateAndRef{Ref: ref, State: r}
		_, consumed, err = ConsumedBy(txn, ref)
		return err
	})
	return out, consumed, err
}

// Unconsumed lists the live states of kind, oldest key first. An empty kind
// lists every kind.
func (v *Vault) Unconsumed(kind ledger.Kind) ([]ledger.StateAndRef, error) {
	return v.unconsumed(func(r ledger.Record) bool {
		return kind == "" || r.Kind() == kind
	})
}

// UnconsumedFor lists the live states of kind that party participates in.
func (v *Vault) UnconsumedFor(kind ledger.Kind, party ledger.Party) ([]ledger.StateAndRef, error) {
	return v.unconsumed(func(r ledger.Record) bool {
		if kind != "" && r.Kind() != kind {
			return false
		}
		for _, p := range r.Participants() {
			if p.Key == party.Key {
				return true
			}
		}
		return false
	})
}

func (v *Vault) unconsumed(keep func(ledger.Record) bool) ([]ledger.StateAndRef, error) {
	var out []ledger.StateAndRef
	prefix := []byte(statePrefix)
	err := v.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			ref, err := ledger.ParseStateRef(strings.TrimPrefix(string(item.Key()), statePrefix))
			if err != nil {
				return err
			}
			_, consumed, err := ConsumedBy(txn, ref)
			if err != nil {
				return err
			}
			if consumed {
				continue
			}
			var r ledger.Record
			if err := item.Value(func(b []byte) error {
				r, err = ledger.UnmarshalRecord(b)
				return err
			}); err != nil {
				return err
			}
			if keep(r) {
				out = append(out, ledger.StateAndRef{Ref: ref, State: r})
			}
		}
		return nil
	})
	return out, err
}
