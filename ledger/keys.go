package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"
)

// Keypair holds a party's ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivKey
}

func GenerateKeypair() Keypair {
	return Keypair{priv: ed25519.GenPrivKey()}
}

// KeypairFromSeed derives a deterministic key from a secret seed.
func KeypairFromSeed(seed string) Keypair {
	return Keypair{priv: ed25519.GenPrivKeyFromSecret([]byte(seed))}
}

func (k Keypair) Public() Key {
	return Key(hex.EncodeToString(k.priv.PubKey().Bytes()))
}

// Sign produces a signature over a transaction content hash.
func (k Keypair) Sign(id Hash) (Signature, error) {
	sig, err := k.priv.Sign([]byte(id))
	if err != nil {
		return Signature{}, fmt.Errorf("sign %s: %w", id, err)
	}
	return Signature{By: k.Public(), Bytes: sig}, nil
}

// Party binds the keypair to a name.
func (k Keypair) Party(name PartyID) Party {
	return Party{Name: name, Key: k.Public()}
}
