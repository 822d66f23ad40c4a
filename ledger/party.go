package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"
)

// PartyID is the well-known name of a party on the network.
type PartyID string

// Key is a hex encoded ed25519 public key.
type Key string

// ParseKey checks that s is a hex encoded ed25519 public key.
func ParseKey(s string) (Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("key is not hex: %w", err)
	}
	if len(raw) != ed25519.PubKeySize {
		return "", fmt.Errorf("key is %d bytes, want %d", len(raw), ed25519.PubKeySize)
	}
	return Key(s), nil
}

// Verify checks sig over msg against the key.
func (k Key) Verify(msg, sig []byte) bool {
	raw, err := hex.DecodeString(string(k))
	if err != nil || len(raw) != ed25519.PubKeySize {
		return false
	}
	return ed25519.PubKey(raw).VerifySignature(msg, sig)
}

// Party is a named identity together with its owning key.
type Party struct {
	Name PartyID `json:"name"`
	Key  Key     `json:"key"`
}

func (p Party) IsZero() bool { return p.Name == "" && p.Key == "" }

func (p Party) String() string { return string(p.Name) }

// Ref builds a reference to something the party issued.
func (p Party) Ref(reference ...byte) PartyRef {
	return PartyRef{Party: p, Reference: reference}
}

// PartyRef pairs an issuing party with its opaque issuance reference.
type PartyRef struct {
	Party     Party  `json:"party"`
	Reference []byte `json:"reference"`
}

// Participants returns the de-duplicated union of record participants, in
// first-seen order.
func Participants(records ...Record) []Party {
	seen := make(map[PartyID]bool)
	var out []Party
	for _, r := range records {
		for _, p := range r.Participants() {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	return out
}
