package ledger

// Agreement is held jointly by all of its parties, however many there are.
// Every party signs it into existence and signs any change to it. Number
// is opaque to the ledger.
type Agreement struct {
	Number  int64   `json:"number"`
	Parties []Party `json:"parties"`
}

func (Agreement) Kind() Kind { return KindAgreement }

func (a Agreement) Participants() []Party { return append([]Party(nil), a.Parties...) }

// GroupKey ignores the parties so a change of parties stays one group.
func (a Agreement) GroupKey() string { return groupKey(KindAgreement, a.Number) }

// Keys are the keys of every party, in order.
func (a Agreement) Keys() []Key {
	keys := make([]Key, len(a.Parties))
	for i, p := range a.Parties {
		keys[i] = p.Key
	}
	return keys
}
