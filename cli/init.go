package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/gregorybednov/ledgerflow/config"
)

var (
	notaryConfigPath string
	notaryDBPath     string
	chainName        string
	persistentPeers  string
)

var notaryCmd = &cobra.Command{
	Use:   "notary",
	Short: "Run or initialise the notary node",
}

var notaryInitCmd = &cobra.Command{
	Use:   "init [genesis|join] [genesis-path]",
	Short: "Initialise a notary node: a new chain or joining one",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newOutput(cmd.OutOrStdout(), logLevel)
		switch args[0] {
		case "genesis":
			if err := initNotary(notaryConfigPath, true, ""); err != nil {
				return err
			}
			out.Infoln("Genesis notary initialised.")
		case "join":
			if len(args) < 2 {
				return fmt.Errorf("join needs the path to genesis.json")
			}
			if err := initNotary(notaryConfigPath, false, args[1]); err != nil {
				return err
			}
			out.Infoln("Joining notary initialised.")
		default:
			return fmt.Errorf("unknown init mode: %s", args[0])
		}
		return nil
	},
}

func init() {
	notaryCmd.PersistentFlags().StringVar(&notaryConfigPath, "home-config", "./notary/config/config.toml", "Path to the notary's Tendermint configuration")
	notaryCmd.PersistentFlags().StringVar(&notaryDBPath, "badger", "./notary/badger", "Path to the notary's BadgerDB")
	notaryInitCmd.Flags().StringVar(&chainName, "chainname", "ledgerflow", "Chain ID of a new chain")
	notaryInitCmd.Flags().StringVar(&persistentPeers, "peers", "", "Persistent peers, id@proto://host:port,...")
	notaryCmd.AddCommand(notaryInitCmd)
	rootCmd.AddCommand(notaryCmd)
}

func initNotary(configFile string, genesis bool, genesisPath string) error {
	tm := config.NotaryDefaults(configFile)
	tm.P2P.PersistentPeers = persistentPeers

	if !genesis {
		if err := installGenesis(genesisPath, tm.GenesisFile()); err != nil {
			return fmt.Errorf("install genesis: %w", err)
		}
	}
	if err := config.InitNotaryFiles(tm, genesis, chainName); err != nil {
		return fmt.Errorf("init files: %w", err)
	}
	return config.WriteNotaryConfig(tm, configFile)
}

// installGenesis copies the chain's genesis document to dst after checking
// that it parses, so a joining notary never starts from a broken file.
func installGenesis(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if _, err := tmtypes.GenesisDocFromJSON(raw); err != nil {
		return fmt.Errorf("%s is not a genesis document: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	return os.WriteFile(dst, raw, 0o600)
}
