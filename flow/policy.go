package flow

import (
	"fmt"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Policy is a responder's own business rule, applied after the contract
// rules pass. A non-nil error refuses the signature.
type Policy interface {
	Check(tx *ledger.Transaction) error
}

type PolicyFunc func(tx *ledger.Transaction) error

func (f PolicyFunc) Check(tx *ledger.Transaction) error { return f(tx) }

// Policies applies each policy in order and stops at the first refusal.
type Policies []Policy

func (ps Policies) Check(tx *ledger.Transaction) error {
	for _, p := range ps {
		if err := p.Check(tx); err != nil {
			return err
		}
	}
	return nil
}

// AcceptAll signs anything the contracts accept.
var AcceptAll Policy = PolicyFunc(func(*ledger.Transaction) error { return nil })

func reject(message string) error {
	return failure.New(failure.CodePolicyRejection, message)
}

// IOUValueCap refuses IOUs worth limit or more.
func IOUValueCap(limit int64) Policy {
	return PolicyFunc(func(tx *ledger.Transaction) error {
		for _, out := range tx.Outputs {
			iou, ok := ledger.Deref(out).(ledger.IOU)
			if ok && iou.Value >= limit {
				return reject("The IOU's value can't be too high.")
			}
		}
		return nil
	})
}

// RequireKinds refuses transactions whose outputs include any other kind.
func RequireKinds(kinds ...ledger.Kind) Policy {
	allowed := make(map[ledger.Kind]bool, len(kinds))
	message := "This transaction is not accepted."
	if len(kinds) > 0 {
		message = fmt.Sprintf("Only %s transactions are signed.", kinds[0])
	}
	for _, k := range kinds {
		allowed[k] = true
	}
	return PolicyFunc(func(tx *ledger.Transaction) error {
		for _, out := range tx.Outputs {
			if !allowed[out.Kind()] {
				return reject(message)
			}
		}
		return nil
	})
}
