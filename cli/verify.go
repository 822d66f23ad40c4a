package cli

import (
	"fmt"
	"os"

	gologme "github.com/gologme/log"
	"github.com/spf13/cobra"

	"github.com/gregorybednov/ledgerflow/contract"
	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/ledger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <tx.json>",
	Short: "Run the contract rules over a transaction file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyFile(newOutput(cmd.OutOrStdout(), logLevel), args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// verifyFile accepts either a bare or a signed transaction.
func verifyFile(out *gologme.Logger, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var tx *ledger.Transaction
	if stx, err := ledger.UnmarshalSigned(raw); err == nil {
		if err := stx.VerifySignatures(); err != nil {
			return err
		}
		tx = stx.Tx
	} else if tx, err = ledger.Unmarshal(raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := contract.Verify(tx); err != nil {
		out.Errorf("%s rejected: %s (%s)", tx.ID(), err, failure.CodeOf(err))
		return err
	}
	out.Infof("%s verifies", tx.ID())
	return nil
}
