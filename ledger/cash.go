package ledger

// Cash is an on-ledger claim on Issuer for Amount.
type Cash struct {
	Issuer PartyRef `json:"issuer"`
	Owner  Party    `json:"owner"`
	Amount Amount   `json:"amount"`
}

func (Cash) Kind() Kind { return KindCash }

func (c Cash) Participants() []Party { return []Party{c.Owner} }

func (c Cash) OwnedBy() Party { return c.Owner }

// GroupKey groups cash by issuer and currency; owners and amounts move freely.
func (c Cash) GroupKey() string {
	return groupKey(KindCash, struct {
		Issuer   PartyRef `json:"issuer"`
		Currency string   `json:"currency"`
	}{c.Issuer, c.Amount.Currency})
}

// SumCashBy totals the cash in records owned by owner, counting only
// amounts in currency.
func SumCashBy(records []Record, owner Party, currency string) Amount {
	total := NewAmount(0, currency)
	for _, r := range records {
		c, ok := Deref(r).(Cash)
		if !ok || c.Owner.Key != owner.Key || c.Amount.Currency != currency {
			continue
		}
		total.Quantity += c.Amount.Quantity
	}
	return total
}
