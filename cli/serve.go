package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/api"
	"github.com/gregorybednov/ledgerflow/config"
	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
	"github.com/gregorybednov/ledgerflow/notary"
	"github.com/gregorybednov/ledgerflow/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the party's node: its vault, flows and peer inbox over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		party, err := config.LoadParty(configPath)
		if err != nil {
			return fmt.Errorf("party configuration: %w", err)
		}
		logger, err := newComponentLogger(logLevel)
		if err != nil {
			return err
		}
		ps, err := buildServer(party, logger)
		if err != nil {
			return err
		}
		defer ps.Close()

		srv := &http.Server{
			Addr:              party.Listen,
			Handler:           ps.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		go func() {
			<-ctx.Done()
			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdown)
		}()

		newOutput(cmd.OutOrStdout(), logLevel).Infof("%s serving on %s", party.Name, party.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

type partyServer struct {
	handler http.Handler
	relay   *flow.Relay
	vault   *vault.Vault
}

func (ps *partyServer) Close() {
	ps.relay.Close()
	ps.vault.Close()
}

// buildServer wires a party's node from its configuration: the notary is
// reached over RPC and the other parties through their inbox endpoints.
func buildServer(party *config.Party, logger tmlog.Logger) (*partyServer, error) {
	v, err := vault.Open(party.VaultDir)
	if err != nil {
		return nil, err
	}
	finality, err := notary.NewRPC(party.Notary.RPC)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("notary client: %w", err)
	}
	peers := api.NewPeers(party.Peers, &http.Client{Timeout: party.Protocol.ResponseTimeout})
	relay := flow.NewRelay(ledger.PartyID(party.Name), peers)

	id := party.Identity()
	node, err := flow.NewNode(flow.Services{
		Identity: id,
		Signer:   id,
		Network:  relay,
		Finality: finality,
		Notary:   flow.StaticNotary(party.NotaryParty()),
		Vault:    v,
	},
		flow.WithConfig(party.Protocol),
		flow.WithPolicy(party.ResponderPolicy()),
		flow.WithLogger(logger),
	)
	if err != nil {
		relay.Close()
		v.Close()
		return nil, err
	}
	relay.Handle(node.Respond)
	return &partyServer{
		handler: api.NewRouter(v, node, relay, logger),
		relay:   relay,
		vault:   v,
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
