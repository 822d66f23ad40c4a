package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/privval"
	tmTypes "github.com/tendermint/tendermint/types"
)

// NotaryDefaults is the Tendermint configuration of a notary node rooted at
// the parent of the directory holding configFile.
func NotaryDefaults(configFile string) *cfg.Config {
	config := cfg.DefaultConfig()
	config.RootDir = filepath.Dir(filepath.Dir(configFile))
	return config
}

// InitNotaryFiles prepares a notary's home: its validator and node keys
// and, on the chain's first notary, a genesis document naming that notary
// as the only validator. Existing keys are kept, so running it twice is
// harmless.
func InitNotaryFiles(config *cfg.Config, isGenesis bool, chainName string) error {
	for _, dir := range []string{filepath.Dir(config.PrivValidatorKeyFile()), filepath.Join(config.RootDir, "data")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("notary home: %w", err)
		}
	}
	validator := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())
	if _, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile()); err != nil {
		return fmt.Errorf("notary node key: %w", err)
	}
	if !isGenesis {
		return nil
	}

	pub, err := validator.GetPubKey()
	if err != nil {
		return fmt.Errorf("notary validator key: %w", err)
	}
	genesis := &tmTypes.GenesisDoc{
		ChainID:         chainName,
		GenesisTime:     time.Now(),
		ConsensusParams: tmTypes.DefaultConsensusParams(),
		Validators: []tmTypes.GenesisValidator{{
			Address: pub.Address(),
			PubKey:  pub,
			Power:   10,
			Name:    config.Moniker,
		}},
		AppHash: []byte{},
	}
	if err := genesis.ValidateAndComplete(); err != nil {
		return fmt.Errorf("genesis of %s: %w", chainName, err)
	}
	return genesis.SaveAs(config.GenesisFile())
}

// WriteNotaryConfig writes the Tendermint settings a notary node needs.
func WriteNotaryConfig(config *cfg.Config, configFile string) error {
	if err := ParsePeers(config.P2P.PersistentPeers); err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	v.Set("moniker", config.Moniker)
	v.Set("db_backend", config.DBBackend)
	v.Set("log_level", config.LogLevel)
	v.Set("log_format", config.LogFormat)
	v.Set("genesis_file", "config/genesis.json")
	v.Set("node_key_file", "config/node_key.json")
	v.Set("abci", config.ABCI)
	v.Set("filter_peers", config.FilterPeers)

	v.Set("priv_validator_key_file", "config/priv_validator_key.json")
	v.Set("priv_validator_state_file", "data/priv_validator_state.json")

	v.Set("rpc", map[string]any{
		"laddr": config.RPC.ListenAddress,
	})
	v.Set("p2p", map[string]any{
		"laddr":            config.P2P.ListenAddress,
		"external_address": config.P2P.ExternalAddress,
		"persistent_peers": config.P2P.PersistentPeers,
		"addr_book_file":   "config/addrbook.json",
		"addr_book_strict": false,
	})
	v.Set("consensus", map[string]any{
		"timeout_commit":               config.Consensus.TimeoutCommit.String(),
		"create_empty_blocks":          config.Consensus.CreateEmptyBlocks,
		"create_empty_blocks_interval": config.Consensus.CreateEmptyBlocksInterval.String(),
	})

	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return err
	}
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ReadNotaryConfig loads a notary node's Tendermint configuration.
func ReadNotaryConfig(configFile string) (*cfg.Config, error) {
	config := NotaryDefaults(configFile)
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("viper read config: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("viper unmarshal: %w", err)
	}
	config.SetRoot(config.RootDir)

	if err := config.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	if err := ParsePeers(config.P2P.PersistentPeers); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	return config, nil
}
