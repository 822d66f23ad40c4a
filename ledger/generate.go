package ledger

import (
	"fmt"
	"time"
)

// GeneratePaperIssue builds an issuance of a paper owned by its issuer.
func GeneratePaperIssue(notary Party, issuance PartyRef, face Amount, maturity time.Time) *Builder {
	paper := NewCommercialPaper(issuance, issuance.Party, face, maturity)
	return NewBuilder(notary).
		AddOutput(paper).
		AddCommand(PaperIssue(issuance.Party.Key))
}

// GeneratePaperMove adds the move of paper to newOwner.
func GeneratePaperMove(b *Builder, paper StateAndRef, newOwner Party) error {
	cp, ok := Deref(paper.State).(CommercialPaper)
	if !ok {
		return fmt.Errorf("state %s is %s, not commercial paper", paper.Ref, paper.State.Kind())
	}
	cmd, out := cp.WithNewOwner(newOwner)
	b.AddInputState(paper).AddOutput(out).AddCommand(cmd)
	return nil
}

// GeneratePaperRedeem adds the redemption of paper, paid from the payer's
// cash. Change goes back to the payer.
func GeneratePaperRedeem(b *Builder, paper StateAndRef, cash []StateAndRef, payer Party) error {
	cp, ok := Deref(paper.State).(CommercialPaper)
	if !ok {
		return fmt.Errorf("state %s is %s, not commercial paper", paper.Ref, paper.State.Kind())
	}
	if err := GenerateCashSpend(b, cash, payer, cp.Owner, cp.FaceValue); err != nil {
		return err
	}
	b.AddInputState(paper).AddCommand(PaperRedeem(cp.Owner.Key))
	return nil
}

// GenerateCashSpend moves amount of payer's cash to recipient. Cash states
// are taken in order until the amount is covered; all of them must share an
// issuer.
func GenerateCashSpend(b *Builder, cash []StateAndRef, payer, recipient Party, amount Amount) error {
	var (
		gathered = NewAmount(0, amount.Currency)
		issuer   PartyRef
		group    string
	)
	for _, in := range cash {
		if gathered.Quantity >= amount.Quantity {
			break
		}
		c, ok := Deref(in.State).(Cash)
		if !ok || c.Owner.Key != payer.Key || c.Amount.Currency != amount.Currency {
			continue
		}
		if group == "" {
			group, issuer = c.GroupKey(), c.Issuer
		} else if c.GroupKey() != group {
			continue
		}
		gathered.Quantity += c.Amount.Quantity
		b.AddInputState(in)
	}
	if gathered.Quantity < amount.Quantity {
		return fmt.Errorf("insufficient balance: have %s, need %s", gathered, amount)
	}
	b.AddOutput(Cash{Issuer: issuer, Owner: recipient, Amount: amount})
	if change := gathered.Quantity - amount.Quantity; change > 0 {
		b.AddOutput(Cash{Issuer: issuer, Owner: payer, Amount: NewAmount(change, amount.Currency)})
	}
	b.AddCommand(CashMove(payer.Key))
	return nil
}

// GenerateCashIssue puts new cash on the ledger.
func GenerateCashIssue(notary Party, issuer PartyRef, owner Party, amount Amount) *Builder {
	return NewBuilder(notary).
		AddOutput(Cash{Issuer: issuer, Owner: owner, Amount: amount}).
		AddCommand(CashIssue(issuer.Party.Key))
}

// GenerateAgreement builds an agreement between parties, signed by all of
// them.
func GenerateAgreement(notary Party, number int64, parties ...Party) *Builder {
	a := Agreement{Number: number, Parties: parties}
	return NewBuilder(notary).
		AddOutput(a).
		AddCommand(AgreementCreate(a.Keys()...))
}

// GenerateIOUCreate builds an IOU signed by both sides.
func GenerateIOUCreate(notary, lender, borrower Party, value int64) *Builder {
	return NewBuilder(notary).
		AddOutput(IOU{Lender: lender, Borrower: borrower, Value: value}).
		AddCommand(IOUCreate(lender.Key, borrower.Key))
}
