package notary

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/contract"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/vault"
)

// Response codes of CheckTx and DeliverTx.
const (
	CodeOK uint32 = iota
	CodeEncoding
	CodeContractViolation
	CodeSignatures
	CodeUnknownInput
	CodeConflict
	CodeWrongNotary
	CodeOutsideTimeWindow
)

var (
	heightKey  = []byte("meta:height")
	appHashKey = []byte("meta:app_hash")
)

// App is the notary state machine. It accepts a signed transaction only if
// the contracts accept it, every command signer signed it, and each input
// exists and is still unconsumed. Accepted transactions consume their
// inputs, so a second transaction spending the same state is refused.
type App struct {
	db     *badger.DB
	notary ledger.Party
	logger log.Logger
	clock  func() time.Time

	currentBatch *badger.Txn
	blockTime    time.Time
	height       int64
	appHash      []byte
}

var _ abci.Application = (*App)(nil)

type AppOption func(*App)

func WithAppLogger(l log.Logger) AppOption { return func(a *App) { a.logger = l } }

// WithMempoolClock sets the clock CheckTx checks time windows against.
// Delivered transactions are checked against the block time.
func WithMempoolClock(clock func() time.Time) AppOption { return func(a *App) { a.clock = clock } }

func NewApp(db *badger.DB, notary ledger.Party, opts ...AppOption) *App {
	app := &App{db: db, notary: notary, logger: log.NewNopLogger(), clock: time.Now}
	for _, opt := range opts {
		opt(app)
	}
	app.logger = app.logger.With("module", "notary")
	app.loadMeta()
	return app
}

// loadMeta restores the last committed height and app hash. A store that
// cannot be read is reported and the app restarts from genesis, letting
// tendermint replay the chain.
func (app *App) loadMeta() {
	err := app.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return fmt.Errorf("read height: %w", err)
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read height: %w", err)
		}
		if len(v) != 8 {
			return fmt.Errorf("stored height has %d bytes, want 8", len(v))
		}
		item, err = txn.Get(appHashKey)
		if err != nil {
			return fmt.Errorf("read app hash: %w", err)
		}
		hash, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read app hash: %w", err)
		}
		app.height, app.appHash = int64(binary.BigEndian.Uint64(v)), hash
		return nil
	})
	if err != nil {
		app.logger.Error("Stored chain state is unreadable, starting from genesis", "err", err)
	}
}

type rejection struct {
	code uint32
	err  error
}

func reject(code uint32, format string, args ...any) *rejection {
	return &rejection{code: code, err: fmt.Errorf(format, args...)}
}

// check validates raw against the state visible in txn at time now.
func (app *App) check(txn *badger.Txn, raw []byte, now time.Time) (*ledger.SignedTransaction, *rejection) {
	stx, err := ledger.UnmarshalSigned(raw)
	if err != nil {
		return nil, &rejection{code: CodeEncoding, err: err}
	}
	id := stx.ID()
	if ok, err := vault.HasTransaction(txn, id); err != nil {
		return nil, reject(CodeEncoding, "lookup %s: %v", id, err)
	} else if ok {
		return stx, nil
	}

	if stx.Tx.Notary.Key != app.notary.Key {
		return nil, reject(CodeWrongNotary, "transaction names notary %s, this is %s", stx.Tx.Notary, app.notary)
	}
	if err := contract.Verify(stx.Tx); err != nil {
		return nil, &rejection{code: CodeContractViolation, err: err}
	}
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return nil, &rejection{code: CodeSignatures, err: err}
	}
	if !stx.Tx.TimeWindow.Contains(now) {
		return nil, reject(CodeOutsideTimeWindow, "time %s is outside the transaction's time window", now.UTC().Format(time.RFC3339))
	}

	seen := make(map[ledger.StateRef]bool, len(stx.Tx.Inputs))
	for _, in := range stx.Tx.Inputs {
		if seen[in.Ref] {
			return nil, reject(CodeConflict, "input %s is consumed twice", in.Ref)
		}
		seen[in.Ref] = true

		stored, err := vault.LookupState(txn, in.Ref)
		if errors.Is(err, vault.ErrNotFound) {
			return nil, reject(CodeUnknownInput, "input %s does not exist", in.Ref)
		}
		if err != nil {
			return nil, reject(CodeUnknownInput, "input %s: %v", in.Ref, err)
		}
		if !ledger.Equal(stored, in.State) {
			return nil, reject(CodeUnknownInput, "input %s does not match the committed state", in.Ref)
		}
		by, consumed, err := vault.ConsumedBy(txn, in.Ref)
		if err != nil {
			return nil, reject(CodeUnknownInput, "input %s: %v", in.Ref, err)
		}
		if consumed {
			return nil, reject(CodeConflict, "input %s was consumed by %s", in.Ref, by)
		}
	}
	return stx, nil
}

func (app *App) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	var resp abci.ResponseCheckTx
	_ = app.db.View(func(txn *badger.Txn) error {
		if _, rej := app.check(txn, req.Tx, app.clock()); rej != nil {
			resp = abci.ResponseCheckTx{Code: rej.code, Log: rej.err.Error()}
		}
		return nil
	})
	return resp
}

func (app *App) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	if app.currentBatch != nil {
		app.currentBatch.Discard()
	}
	app.currentBatch = app.db.NewTransaction(true)
	app.blockTime = req.Header.Time
	return abci.ResponseBeginBlock{}
}

func (app *App) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	if app.currentBatch == nil {
		app.currentBatch = app.db.NewTransaction(true)
	}
	now := app.blockTime
	if now.IsZero() {
		now = app.clock()
	}
	stx, rej := app.check(app.currentBatch, req.Tx, now)
	if rej != nil {
		app.logger.Info("transaction refused", "code", rej.code, "err", rej.err)
		return abci.ResponseDeliverTx{Code: rej.code, Log: rej.err.Error()}
	}
	id := stx.ID()
	if err := vault.Apply(app.currentBatch, stx); err != nil {
		return abci.ResponseDeliverTx{Code: CodeEncoding, Log: err.Error()}
	}
	sum := sha256.Sum256(append(append([]byte{}, app.appHash...), string(id)...))
	app.appHash = sum[:]
	app.logger.Info("transaction notarised", "tx", id, "inputs", len(stx.Tx.Inputs), "outputs", len(stx.Tx.Outputs))
	return abci.ResponseDeliverTx{Code: CodeOK, Data: []byte(id)}
}

func (app *App) EndBlock(req abci.RequestEndBlock) abci.ResponseEndBlock {
	app.height = req.Height
	return abci.ResponseEndBlock{}
}

func (app *App) Commit() abci.ResponseCommit {
	if app.currentBatch == nil {
		app.currentBatch = app.db.NewTransaction(true)
	}
	height := make([]byte, 8)
	binary.BigEndian.PutUint64(height, uint64(app.height))
	if err := app.currentBatch.Set(heightKey, height); err != nil {
		app.logger.Error("commit", "err", err)
	}
	if err := app.currentBatch.Set(appHashKey, app.appHash); err != nil {
		app.logger.Error("commit", "err", err)
	}
	if err := app.currentBatch.Commit(); err != nil {
		app.logger.Error("commit", "err", err)
	}
	app.currentBatch = nil
	return abci.ResponseCommit{Data: app.appHash}
}

// Query serves tx/<id>, state/<txid>:<index> and list/<kind>.
func (app *App) Query(req abci.RequestQuery) abci.ResponseQuery {
	path := strings.Trim(req.Path, "/")
	kind, arg, ok := strings.Cut(path, "/")
	if !ok {
		return abci.ResponseQuery{Code: 1, Log: "unsupported query"}
	}
	v := vault.New(app.db)

	var (
		result any
		err    error
	)
	switch kind {
	case "tx":
		var stx *ledger.SignedTransaction
		if stx, err = v.Transaction(ledger.Hash(arg)); err == nil {
			var raw []byte
			raw, err = ledger.MarshalSigned(stx)
			result = json.RawMessage(raw)
		}
	case "state":
		var ref ledger.StateRef
		if ref, err = ledger.ParseStateRef(arg); err == nil {
			var (
				state    ledger.StateAndRef
				consumed bool
				raw      []byte
			)
			if state, consumed, err = v.State(ref); err == nil {
				if raw, err = ledger.MarshalRecord(state.State); err == nil {
					result = struct {
						Ref      string          `json:"ref"`
						State    json.RawMessage `json:"state"`
						Consumed bool            `json:"consumed"`
					}{ref.String(), raw, consumed}
				}
			}
		}
	case "list":
		var states []ledger.StateAndRef
		if states, err = v.Unconsumed(ledger.Kind(arg)); err == nil {
			refs := make([]string, len(states))
			for i, s := range states {
				refs[i] = s.Ref.String()
			}
			result = refs
		}
	default:
		return abci.ResponseQuery{Code: 1, Log: "unsupported query"}
	}
	if err != nil {
		return abci.ResponseQuery{Code: 1, Log: err.Error()}
	}
	out, err := json.Marshal(result)
	if err != nil {
		return abci.ResponseQuery{Code: 1, Log: err.Error()}
	}
	return abci.ResponseQuery{Code: 0, Value: out, Height: app.height}
}

func (app *App) Info(req abci.RequestInfo) abci.ResponseInfo {
	return abci.ResponseInfo{
		Data:             "ledgerflow-notary",
		Version:          "0.1",
		LastBlockHeight:  app.height,
		LastBlockAppHash: app.appHash,
	}
}

func (app *App) SetOption(req abci.RequestSetOption) abci.ResponseSetOption {
	return abci.ResponseSetOption{}
}

func (app *App) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	return abci.ResponseInitChain{}
}

func (app *App) ListSnapshots(req abci.RequestListSnapshots) abci.ResponseListSnapshots {
	return abci.ResponseListSnapshots{}
}

func (app *App) OfferSnapshot(req abci.RequestOfferSnapshot) abci.ResponseOfferSnapshot {
	return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
}

func (app *App) LoadSnapshotChunk(req abci.RequestLoadSnapshotChunk) abci.ResponseLoadSnapshotChunk {
	return abci.ResponseLoadSnapshotChunk{}
}

func (app *App) ApplySnapshotChunk(req abci.RequestApplySnapshotChunk) abci.ResponseApplySnapshotChunk {
	return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ACCEPT}
}
