package contract

import (
	"github.com/gregorybednov/ledgerflow/ledger"
)

// CommercialPaper verifies issue, move and redeem of commercial paper.
type CommercialPaper struct{}

func (CommercialPaper) Kind() ledger.Kind { return ledger.KindCommercialPaper }

func (cp CommercialPaper) Verify(tx *ledger.Transaction, cmd ledger.Command, groups []Group) error {
	for _, g := range groups {
		var err error
		switch cmd.Verb {
		case ledger.VerbMove:
			err = cp.verifyMove(cmd, g)
		case ledger.VerbRedeem:
			err = cp.verifyRedeem(tx, cmd, g)
		case ledger.VerbIssue:
			err = cp.verifyIssue(tx, cmd, g)
		default:
			err = violation(ReasonUnrecognisedCommand)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (CommercialPaper) verifyMove(cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 1 {
		return violation("exactly one input is moved")
	}
	input, err := asPaper(g.Inputs[0])
	if err != nil {
		return err
	}
	if !cmd.SignedBy(input.Owner.Key) {
		return violation("the transaction is signed by the owner of the CP")
	}
	// One output in the same group is the input with a new owner.
	if len(g.Outputs) != 1 {
		return violation("the state is propagated")
	}
	return nil
}

func (CommercialPaper) verifyRedeem(tx *ledger.Transaction, cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 1 {
		return violation("exactly one input is redeemed")
	}
	input, err := asPaper(g.Inputs[0])
	if err != nil {
		return err
	}
	if tx.TimeWindow == nil || tx.TimeWindow.From == nil {
		return violation("redemptions must be timestamped")
	}
	if !tx.TimeWindow.From.After(input.MaturityDate) {
		return violation("the paper must have matured")
	}
	received := ledger.SumCashBy(tx.Outputs, input.Owner, input.FaceValue.Currency)
	if received != input.FaceValue {
		return violation("the received amount equals the face value")
	}
	if len(g.Outputs) != 0 {
		return violation("the paper must be destroyed")
	}
	if !cmd.SignedBy(input.Owner.Key) {
		return violation("the transaction is signed by the owner of the CP")
	}
	return nil
}

func (CommercialPaper) verifyIssue(tx *ledger.Transaction, cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 0 {
		return violation("can't reissue an existing state")
	}
	if len(g.Outputs) != 1 {
		return violation("exactly one output is issued")
	}
	output, err := asPaper(g.Outputs[0])
	if err != nil {
		return err
	}
	if tx.TimeWindow == nil || tx.TimeWindow.Until == nil {
		return violation("issuances must have a time window")
	}
	if !tx.TimeWindow.Until.Before(output.MaturityDate) {
		return violation("the maturity date is not in the past")
	}
	if output.FaceValue.Quantity <= 0 {
		return violation("output values sum to more than the inputs")
	}
	if !cmd.SignedBy(output.Issuance.Party.Key) {
		return violation("output states are issued by a command signer")
	}
	return nil
}

func asPaper(r ledger.Record) (ledger.CommercialPaper, error) {
	if v, ok := ledger.Deref(r).(ledger.CommercialPaper); ok {
		return v, nil
	}
	return ledger.CommercialPaper{}, violation("unexpected commercial paper record")
}
