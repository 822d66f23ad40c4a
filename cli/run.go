package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gregorybednov/ledgerflow/config"
	"github.com/gregorybednov/ledgerflow/notary"
)

var notaryRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the notary node",
	RunE: func(cmd *cobra.Command, args []string) error {
		party, err := config.LoadParty(configPath)
		if err != nil {
			return fmt.Errorf("party configuration: %w", err)
		}
		if party.Notary.Seed == "" {
			return fmt.Errorf("notary.seed must be set on the notary itself")
		}
		tm, err := config.ReadNotaryConfig(notaryConfigPath)
		if err != nil {
			return fmt.Errorf("notary configuration not read: %w", err)
		}
		logger, err := newComponentLogger(logLevel)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return notary.Run(ctx, notaryDBPath, tm, party.NotaryParty(), logger)
	},
}

func init() {
	notaryCmd.AddCommand(notaryRunCmd)
}
