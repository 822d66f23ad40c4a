package flow

import (
	"context"
	"time"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// CreateIOU lends value to borrower. Both sides sign.
func (n *Node) CreateIOU(ctx context.Context, borrower ledger.Party, value int64) (*Result, error) {
	b := ledger.GenerateIOUCreate(n.Notary(), n.Me(), borrower, value)
	return n.Propose(ctx, b.Transaction())
}

// IssuePaper issues commercial paper owned by this node. The time window is
// centred on now, so maturity must lie beyond the tolerance.
func (n *Node) IssuePaper(ctx context.Context, face ledger.Amount, maturity time.Time, reference ...byte) (*Result, error) {
	b := ledger.GeneratePaperIssue(n.Notary(), n.Me().Ref(reference...), face, maturity).
		SetTimeWindowWithTolerance(n.clock(), n.cfg.TimeTolerance)
	return n.Propose(ctx, b.Transaction())
}

// MovePaper transfers paper owned by this node to newOwner.
func (n *Node) MovePaper(ctx context.Context, paper ledger.StateAndRef, newOwner ledger.Party) (*Result, error) {
	if o, ok := ledger.Deref(paper.State).(ledger.Ownable); !ok || o.OwnedBy().Key != n.Me().Key {
		return nil, failure.Newf(failure.CodeInvalidProposal, "%s is not owned by %s", paper.Ref, n.Me().Name)
	}
	b := ledger.NewBuilder(n.Notary())
	if err := ledger.GeneratePaperMove(b, paper, newOwner); err != nil {
		return nil, failure.Wrap(failure.CodeInvalidProposal, err.Error(), err)
	}
	return n.Propose(ctx, b.Transaction())
}

// RedeemPaper pays the holder of paper its face value from this node's cash
// and destroys the paper.
func (n *Node) RedeemPaper(ctx context.Context, paper ledger.StateAndRef, cash []ledger.StateAndRef) (*Result, error) {
	b := ledger.NewBuilder(n.Notary()).SetTimeWindowWithTolerance(n.clock(), n.cfg.TimeTolerance)
	if err := ledger.GeneratePaperRedeem(b, paper, cash, n.Me()); err != nil {
		return nil, failure.Wrap(failure.CodeInvalidProposal, err.Error(), err)
	}
	return n.Propose(ctx, b.Transaction())
}

// IssueCash issues amount of this node's cash to owner.
func (n *Node) IssueCash(ctx context.Context, owner ledger.Party, amount ledger.Amount, reference ...byte) (*Result, error) {
	b := ledger.GenerateCashIssue(n.Notary(), n.Me().Ref(reference...), owner, amount)
	return n.Propose(ctx, b.Transaction())
}

// CreateAgreement creates an agreement held by this node and others. Every
// party is asked to sign.
func (n *Node) CreateAgreement(ctx context.Context, number int64, others ...ledger.Party) (*Result, error) {
	parties := append([]ledger.Party{n.Me()}, others...)
	b := ledger.GenerateAgreement(n.Notary(), number, parties...).
		SetTimeWindowWithTolerance(n.clock(), n.cfg.TimeTolerance)
	return n.Propose(ctx, b.Transaction())
}
