// Package notary is the finality service: a Tendermint ABCI application
// that refuses any transaction consuming an already consumed state, plus
// clients that submit fully signed transactions to it.
package notary

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	nm "github.com/tendermint/tendermint/node"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/privval"
	"github.com/tendermint/tendermint/proxy"
	tmTypes "github.com/tendermint/tendermint/types"

	"github.com/gregorybednov/ledgerflow/ledger"
)

// OpenDB opens the notary's badger store.
func OpenDB(path string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(path).WithTruncate(true).WithLogger(nil))
}

func newTendermint(app *App, config *cfg.Config, logger log.Logger) (*nm.Node, error) {
	var pv tmTypes.PrivValidator
	if _, err := os.Stat(config.PrivValidatorKeyFile()); err == nil {
		pv = privval.LoadFilePV(
			config.PrivValidatorKeyFile(),
			config.PrivValidatorStateFile(),
		)
	} else {
		logger.Info("priv_validator_key.json not found, running as non-validator")
		pv = tmTypes.NewMockPV()
	}

	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("load node key: %w", err)
	}

	return nm.NewNode(
		config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		nm.DefaultGenesisDocProviderFunc(config),
		nm.DefaultDBProvider,
		nm.DefaultMetricsProvider(config.Instrumentation),
		logger,
	)
}

// Run serves the notary identified by notary until ctx is done or the node
// stops by itself.
func Run(ctx context.Context, dbPath string, config *cfg.Config, notary ledger.Party, logger log.Logger) error {
	db, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("open badger db: %w", err)
	}
	defer db.Close()

	app := NewApp(db, notary, WithAppLogger(logger))
	node, err := newTendermint(app, config, logger)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	logger.Info("notary started", "name", notary.Name, "key", notary.Key, "rpc", config.RPC.ListenAddress)

	select {
	case <-ctx.Done():
	case <-node.Quit():
		return fmt.Errorf("node stopped")
	}
	if err := node.Stop(); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	node.Wait()
	return nil
}
