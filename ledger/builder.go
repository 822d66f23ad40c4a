package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Builder accumulates a candidate transaction. It validates nothing and is
// not safe for concurrent use; one builder per proposal.
type Builder struct {
	tx Transaction
}

// NewBuilder starts a transaction with a fresh nonce, so two otherwise
// identical proposals never share a content hash.
func NewBuilder(notary Party) *Builder {
	return &Builder{tx: Transaction{Nonce: uuid.NewString(), Notary: notary}}
}

func (b *Builder) AddInput(record Record, ref StateRef) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, StateAndRef{Ref: ref, State: record})
	return b
}

func (b *Builder) AddInputState(in StateAndRef) *Builder {
	return b.AddInput(in.State, in.Ref)
}

func (b *Builder) AddOutput(record Record) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, record)
	return b
}

func (b *Builder) AddCommand(cmd Command) *Builder {
	b.tx.Commands = append(b.tx.Commands, cmd)
	return b
}

// SetTimeWindow sets the window; a zero time leaves that side open.
func (b *Builder) SetTimeWindow(from, until time.Time) *Builder {
	switch {
	case from.IsZero() && until.IsZero():
		b.tx.TimeWindow = &TimeWindow{}
	case from.IsZero():
		b.tx.TimeWindow = UntilOnly(until)
	case until.IsZero():
		b.tx.TimeWindow = FromOnly(from)
	default:
		b.tx.TimeWindow = Between(from, until)
	}
	return b
}

func (b *Builder) SetTimeWindowWithTolerance(t time.Time, tolerance time.Duration) *Builder {
	b.tx.TimeWindow = WithTolerance(t, tolerance)
	return b
}

func (b *Builder) ClearTimeWindow() *Builder {
	b.tx.TimeWindow = nil
	return b
}

// Transaction returns a snapshot of what has been added so far. Later
// builder calls do not affect it.
func (b *Builder) Transaction() *Transaction {
	tx := b.tx
	tx.Inputs = append([]StateAndRef(nil), b.tx.Inputs...)
	tx.Outputs = append([]Record(nil), b.tx.Outputs...)
	tx.Commands = append([]Command(nil), b.tx.Commands...)
	if b.tx.TimeWindow != nil {
		w := *b.tx.TimeWindow
		tx.TimeWindow = &w
	}
	return &tx
}
