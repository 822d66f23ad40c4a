package contract

import (
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Cash verifies issuance, movement and exit of cash. Within a group (issuer
// and currency) value is conserved on move and only shrinks on exit.
type Cash struct{}

func (Cash) Kind() ledger.Kind { return ledger.KindCash }

func (c Cash) Verify(tx *ledger.Transaction, cmd ledger.Command, groups []Group) error {
	for _, g := range groups {
		var err error
		switch cmd.Verb {
		case ledger.VerbIssue:
			err = c.verifyIssue(cmd, g)
		case ledger.VerbMove:
			err = c.verifyMove(cmd, g)
		case ledger.VerbExit:
			err = c.verifyExit(cmd, g)
		default:
			err = violation(ReasonUnrecognisedCommand)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (Cash) verifyIssue(cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 0 {
		return violation("cash issuance consumes no inputs")
	}
	if len(g.Outputs) == 0 {
		return violation("cash issuance has at least one output")
	}
	for _, r := range g.Outputs {
		out, err := asCash(r)
		if err != nil {
			return err
		}
		if out.Amount.Quantity <= 0 {
			return violation("issued amounts are positive")
		}
		if !cmd.SignedBy(out.Issuer.Party.Key) {
			return violation("cash is issued by a command signer")
		}
	}
	return nil
}

func (Cash) verifyMove(cmd ledger.Command, g Group) error {
	in, out, _, err := sumGroup(cmd, g)
	if err != nil {
		return err
	}
	if in != out {
		return violation("the amounts balance")
	}
	return nil
}

// verifyExit lets the difference between inputs and outputs leave the
// ledger. The issuer has to agree to that.
func (Cash) verifyExit(cmd ledger.Command, g Group) error {
	in, out, issuer, err := sumGroup(cmd, g)
	if err != nil {
		return err
	}
	if out >= in {
		return violation("an exit reduces the amount of cash")
	}
	if !cmd.SignedBy(issuer) {
		return violation("the issuer signs an exit")
	}
	return nil
}

// sumGroup totals a group with at least one input, checking every input
// owner signed.
func sumGroup(cmd ledger.Command, g Group) (in, out int64, issuer ledger.Key, err error) {
	if len(g.Inputs) == 0 {
		return 0, 0, "", violation("there is at least one cash input for this group")
	}
	for _, r := range g.Inputs {
		c, err := asCash(r)
		if err != nil {
			return 0, 0, "", err
		}
		in += c.Amount.Quantity
		issuer = c.Issuer.Party.Key
		if !cmd.SignedBy(c.Owner.Key) {
			return 0, 0, "", violation("the owning keys are a subset of the signing keys")
		}
	}
	for _, r := range g.Outputs {
		c, err := asCash(r)
		if err != nil {
			return 0, 0, "", err
		}
		if c.Amount.Quantity <= 0 {
			return 0, 0, "", violation("there are no zero sized outputs")
		}
		out += c.Amount.Quantity
	}
	return in, out, issuer, nil
}

func asCash(r ledger.Record) (ledger.Cash, error) {
	if v, ok := ledger.Deref(r).(ledger.Cash); ok {
		return v, nil
	}
	return ledger.Cash{}, violation("unexpected cash record")
}
