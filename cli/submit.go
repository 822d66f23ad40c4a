package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gregorybednov/ledgerflow/config"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/notary"
	"github.com/gregorybednov/ledgerflow/vault"
)

var submitCmd = &cobra.Command{
	Use:   "submit <signed-tx.json>",
	Short: "Send a fully signed transaction to the notary and record the commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newOutput(cmd.OutOrStdout(), logLevel)
		party, err := config.LoadParty(configPath)
		if err != nil {
			return fmt.Errorf("party configuration: %w", err)
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		stx, err := ledger.UnmarshalSigned(raw)
		if err != nil {
			return err
		}

		rpc, err := notary.NewRPC(party.Notary.RPC)
		if err != nil {
			return err
		}
		commit, err := rpc.Submit(context.Background(), stx)
		if err != nil {
			return err
		}

		v, err := vault.Open(party.VaultDir)
		if err != nil {
			return err
		}
		defer v.Close()
		if err := v.Record(stx); err != nil {
			return err
		}
		out.Infof("%s committed at height %d", commit.TxID, commit.Height)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
