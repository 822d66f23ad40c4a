package contract

import (
	"github.com/gregorybednov/ledgerflow/ledger"
)

// IOU verifies creation of IOUs. The checks span the whole transaction: an
// IOU is only ever created on its own.
type IOU struct{}

func (IOU) Kind() ledger.Kind { return ledger.KindIOU }

func (IOU) Verify(tx *ledger.Transaction, cmd ledger.Command, _ []Group) error {
	if cmd.Verb != ledger.VerbCreate {
		return violation(ReasonUnrecognisedCommand)
	}

	if len(tx.Inputs) != 0 {
		return violation("No inputs may be consumed when issuing and IOU.")
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Kind() != ledger.KindIOU {
		return violation("There must be one output state of type IOUState.")
	}
	out, ok := ledger.Deref(tx.Outputs[0]).(ledger.IOU)
	if !ok {
		return violation("There must be one output state of type IOUState.")
	}

	if out.Value <= 0 {
		return violation("The IOU's value must be non-negative.")
	}
	if out.Lender.Name == out.Borrower.Name || out.Lender.Key == out.Borrower.Key {
		return violation("The lender and the borrower cannot be the same entity.")
	}

	if len(cmd.Signers) != 2 {
		return violation("There must be two signers.")
	}
	if !cmd.SignedBy(out.Borrower.Key) || !cmd.SignedBy(out.Lender.Key) {
		return violation("The borrower and lender must both be signers.")
	}
	return nil
}
