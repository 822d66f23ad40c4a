package contract

import (
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Agreement verifies jointly held agreements: creation and a change of
// parties. All parties, old and new, sign.
type Agreement struct{}

func (Agreement) Kind() ledger.Kind { return ledger.KindAgreement }

func (a Agreement) Verify(_ *ledger.Transaction, cmd ledger.Command, groups []Group) error {
	for _, g := range groups {
		var err error
		switch cmd.Verb {
		case ledger.VerbCreate:
			err = a.verifyCreate(cmd, g)
		case ledger.VerbMove:
			err = a.verifyMove(cmd, g)
		default:
			err = violation(ReasonUnrecognisedCommand)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (Agreement) verifyCreate(cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 0 {
		return violation("No inputs may be consumed when creating an agreement.")
	}
	if len(g.Outputs) != 1 {
		return violation("There must be one agreement per number.")
	}
	out, err := asAgreement(g.Outputs[0])
	if err != nil {
		return err
	}
	return checkParties(cmd, out)
}

func (Agreement) verifyMove(cmd ledger.Command, g Group) error {
	if len(g.Inputs) != 1 || len(g.Outputs) != 1 {
		return violation("exactly one agreement is replaced")
	}
	in, err := asAgreement(g.Inputs[0])
	if err != nil {
		return err
	}
	out, err := asAgreement(g.Outputs[0])
	if err != nil {
		return err
	}
	if err := checkParties(cmd, in); err != nil {
		return err
	}
	return checkParties(cmd, out)
}

func checkParties(cmd ledger.Command, a ledger.Agreement) error {
	if len(a.Parties) == 0 {
		return violation("An agreement has at least one party.")
	}
	seen := make(map[ledger.Key]bool, len(a.Parties))
	for _, p := range a.Parties {
		if seen[p.Key] {
			return violation("The parties of an agreement are distinct.")
		}
		seen[p.Key] = true
		if !cmd.SignedBy(p.Key) {
			return violation("Every party signs the agreement.")
		}
	}
	return nil
}

func asAgreement(r ledger.Record) (ledger.Agreement, error) {
	if v, ok := ledger.Deref(r).(ledger.Agreement); ok {
		return v, nil
	}
	return ledger.Agreement{}, violation("unexpected agreement record")
}
