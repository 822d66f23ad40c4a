package notary

import (
	"context"
	"sync"
	"time"

	abci "github.com/tendermint/tendermint/abci/types"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmproto "github.com/tendermint/tendermint/proto/tendermint/types"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Failure maps a refusal code from the notary onto the failure taxonomy.
func Failure(code uint32, log string) error {
	switch code {
	case CodeOK:
		return nil
	case CodeConflict:
		return failure.New(failure.CodeConflictingConsumption, log)
	case CodeContractViolation:
		return failure.New(failure.CodeContractViolation, log)
	default:
		return failure.New(failure.CodeNotaryRejection, log).With("notary_code", codeName(code))
	}
}

func codeName(code uint32) string {
	switch code {
	case CodeEncoding:
		return "encoding"
	case CodeSignatures:
		return "signatures"
	case CodeUnknownInput:
		return "unknown_input"
	case CodeWrongNotary:
		return "wrong_notary"
	case CodeOutsideTimeWindow:
		return "outside_time_window"
	default:
		return "unknown"
	}
}

// Local drives an App in-process, one block per submission.
type Local struct {
	mu    sync.Mutex
	app   *App
	clock func() time.Time
}

var (
	_ flow.Finality  = (*Local)(nil)
	_ flow.Confirmer = (*Local)(nil)
)

// NewLocal wraps app. Block times come from clock, which should be the
// same clock the app's mempool uses.
func NewLocal(app *App, clock func() time.Time) *Local {
	if clock == nil {
		clock = time.Now
	}
	return &Local{app: app, clock: clock}
}

func (l *Local) Submit(ctx context.Context, stx *ledger.SignedTransaction) (flow.Commit, error) {
	raw, err := ledger.MarshalSigned(stx)
	if err != nil {
		return flow.Commit{}, failure.Wrap(failure.CodeInvalidProposal, "encode signed transaction", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return flow.Commit{}, failure.Wrap(failure.CodeTransportFailure, "submission cancelled", err)
	}

	if res := l.app.CheckTx(abci.RequestCheckTx{Tx: raw}); res.Code != CodeOK {
		return flow.Commit{}, Failure(res.Code, res.Log)
	}
	height := l.app.Info(abci.RequestInfo{}).LastBlockHeight + 1
	l.app.BeginBlock(abci.RequestBeginBlock{Header: tmproto.Header{Height: height, Time: l.clock()}})
	res := l.app.DeliverTx(abci.RequestDeliverTx{Tx: raw})
	l.app.EndBlock(abci.RequestEndBlock{Height: height})
	l.app.Commit()
	if res.Code != CodeOK {
		return flow.Commit{}, Failure(res.Code, res.Log)
	}
	return flow.Commit{TxID: stx.ID(), Height: height}, nil
}

// Confirm reports whether the app committed id.
func (l *Local) Confirm(ctx context.Context, id ledger.Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.app.Query(abci.RequestQuery{Path: txQueryPath(id)}).Code == CodeOK, nil
}

func txQueryPath(id ledger.Hash) string { return "tx/" + string(id) }

type rpcClient interface {
	BroadcastTxCommit(ctx context.Context, tx tmtypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data tmbytes.HexBytes) (*ctypes.ResultABCIQuery, error)
}

// RPC submits to a running notary node over its Tendermint RPC endpoint.
type RPC struct {
	client rpcClient
}

var (
	_ flow.Finality  = (*RPC)(nil)
	_ flow.Confirmer = (*RPC)(nil)
)

func NewRPC(remote string) (*RPC, error) {
	c, err := rpchttp.New(remote, "/websocket")
	if err != nil {
		return nil, failure.Wrap(failure.CodeTransportFailure, "connect to notary "+remote, err)
	}
	return &RPC{client: c}, nil
}

func (r *RPC) Submit(ctx context.Context, stx *ledger.SignedTransaction) (flow.Commit, error) {
	raw, err := ledger.MarshalSigned(stx)
	if err != nil {
		return flow.Commit{}, failure.Wrap(failure.CodeInvalidProposal, "encode signed transaction", err)
	}
	res, err := r.client.BroadcastTxCommit(ctx, raw)
	if err != nil {
		return flow.Commit{}, failure.Wrap(failure.CodeTransportFailure, "broadcast to notary", err)
	}
	if res.CheckTx.Code != CodeOK {
		return flow.Commit{}, Failure(res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.DeliverTx.Code != CodeOK {
		return flow.Commit{}, Failure(res.DeliverTx.Code, res.DeliverTx.Log)
	}
	return flow.Commit{TxID: stx.ID(), Height: res.Height}, nil
}

// Confirm asks the notary node whether it committed id.
func (r *RPC) Confirm(ctx context.Context, id ledger.Hash) (bool, error) {
	res, err := r.client.ABCIQuery(ctx, txQueryPath(id), nil)
	if err != nil {
		return false, failure.Wrap(failure.CodeTransportFailure, "query notary", err)
	}
	return res.Response.Code == CodeOK, nil
}
