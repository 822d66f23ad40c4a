// Package contract decides whether a candidate transaction is a valid state
// transition. Verification is pure: the same transaction yields the same
// verdict on every party, and only the transaction's own time window stands
// in for the clock.
package contract

import (
	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Reason for any transaction whose commands do not resolve its groups.
const ReasonUnrecognisedCommand = "unrecognised command"

// Group is the inputs and outputs of one instrument sharing a group key.
type Group struct {
	Key     string
	Inputs  []ledger.Record
	Outputs []ledger.Record
}

// Instrument verifies the groups of one record kind under its single
// command.
type Instrument interface {
	Kind() ledger.Kind
	Verify(tx *ledger.Transaction, cmd ledger.Command, groups []Group) error
}

var instruments = []Instrument{
	CommercialPaper{},
	IOU{},
	Cash{},
	Agreement{},
}

// Verify runs every instrument touched by tx. The first violated constraint
// is returned as a CodeContractViolation failure whose message names it.
func Verify(tx *ledger.Transaction) error {
	touched := make(map[ledger.Kind]bool)
	for _, in := range tx.Inputs {
		touched[in.State.Kind()] = true
	}
	for _, out := range tx.Outputs {
		touched[out.Kind()] = true
	}
	for _, c := range tx.Commands {
		touched[c.Kind] = true
	}

	known := 0
	for _, inst := range instruments {
		if !touched[inst.Kind()] {
			continue
		}
		known++
		cmd, err := singleCommand(tx.Commands, inst.Kind())
		if err != nil {
			return err
		}
		if err := inst.Verify(tx, cmd, GroupStates(tx, inst.Kind())); err != nil {
			return err
		}
	}
	if known != len(touched) {
		return violation(ReasonUnrecognisedCommand)
	}
	return nil
}

func singleCommand(cmds []ledger.Command, kind ledger.Kind) (ledger.Command, error) {
	var (
		found ledger.Command
		n     int
	)
	for _, c := range cmds {
		if c.Kind == kind {
			found = c
			n++
		}
	}
	if n != 1 {
		return ledger.Command{}, violation(ReasonUnrecognisedCommand)
	}
	return found, nil
}

// GroupStates partitions the records of kind by group key, in the order
// groups first appear among inputs then outputs.
func GroupStates(tx *ledger.Transaction, kind ledger.Kind) []Group {
	var groups []Group
	index := make(map[string]int)
	slot := func(r ledger.Record) *Group {
		key := r.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		return &groups[i]
	}
	for _, in := range tx.Inputs {
		if in.State.Kind() == kind {
			g := slot(in.State)
			g.Inputs = append(g.Inputs, in.State)
		}
	}
	for _, out := range tx.Outputs {
		if out.Kind() == kind {
			g := slot(out)
			g.Outputs = append(g.Outputs, out)
		}
	}
	return groups
}

func violation(reason string) *failure.Error {
	return failure.New(failure.CodeContractViolation, reason)
}
