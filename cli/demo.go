package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	gologme "github.com/gologme/log"
	"github.com/spf13/cobra"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/notary"
	"github.com/gregorybednov/ledgerflow/vault"
)

var (
	demoValue int64
	demoLimit int64
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "In-process demonstrations of the signing protocol",
}

var demoIOUCmd = &cobra.Command{
	Use:   "iou",
	Short: "A lender proposes an IOU; the borrower signs unless it breaks its cap",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newComponentLogger(logLevel)
		if err != nil {
			return err
		}
		dir, err := os.MkdirTemp("", "ledgerflow-demo-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		return runIOUDemo(cmd.Context(), newOutput(cmd.OutOrStdout(), logLevel), logger, dir, demoValue, demoLimit)
	},
}

func init() {
	demoIOUCmd.Flags().Int64Var(&demoValue, "value", 50, "IOU value")
	demoIOUCmd.Flags().Int64Var(&demoLimit, "limit", 100, "Borrower's IOU value cap")
	demoCmd.AddCommand(demoIOUCmd)
	rootCmd.AddCommand(demoCmd)
}

// runIOUDemo wires a lender, a borrower and a notary together in one
// process, each with its own badger store under dir.
func runIOUDemo(ctx context.Context, out *gologme.Logger, logger tmlog.Logger, dir string, value, limit int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := notary.OpenDB(filepath.Join(dir, "notary"))
	if err != nil {
		return err
	}
	defer db.Close()
	notaryParty := ledger.KeypairFromSeed("demo-notary").Party("Notary")
	finality := notary.NewLocal(notary.NewApp(db, notaryParty, notary.WithAppLogger(logger)), nil)

	hub := flow.NewHub()
	defer hub.Close()

	observer := flow.ObserverFunc(func(t flow.Transition) {
		out.Debugf("%s %s: %s -> %s", t.Party, t.Role, t.From, t.To)
	})
	start := func(name ledger.PartyID, policy flow.Policy) (*flow.Node, *vault.Vault, error) {
		v, err := vault.Open(filepath.Join(dir, string(name)))
		if err != nil {
			return nil, nil, err
		}
		id := flow.NewLocalIdentity(name, ledger.KeypairFromSeed("demo-"+string(name)))
		node, err := flow.NewNode(flow.Services{
			Identity: id,
			Signer:   id,
			Network:  hub.Endpoint(name),
			Finality: finality,
			Notary:   flow.StaticNotary(notaryParty),
			Vault:    v,
		}, flow.WithPolicy(policy), flow.WithLogger(logger), flow.WithObserver(observer))
		if err != nil {
			v.Close()
			return nil, nil, err
		}
		node.Serve(hub)
		return node, v, nil
	}

	lender, lenderVault, err := start("Lender", flow.AcceptAll)
	if err != nil {
		return err
	}
	defer lenderVault.Close()
	borrower, borrowerVault, err := start("Borrower", flow.IOUValueCap(limit))
	if err != nil {
		return err
	}
	defer borrowerVault.Close()

	res, err := lender.CreateIOU(ctx, borrower.Me(), value)
	hub.Wait()
	if err != nil {
		out.Warnf("IOU of %d refused: %s (%s)", value, err, failure.CodeOf(err))
		return err
	}
	out.Infof("IOU of %d committed as %s at height %d", value, res.Commit.TxID, res.Commit.Height)

	for name, v := range map[string]*vault.Vault{"lender": lenderVault, "borrower": borrowerVault} {
		states, err := v.Unconsumed(ledger.KindIOU)
		if err != nil {
			return err
		}
		if len(states) != 1 {
			return fmt.Errorf("%s vault holds %d IOUs", name, len(states))
		}
		out.Infof("%s vault: %s", name, states[0].Ref)
	}
	return nil
}
