// Package config loads party and notary configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/gregorybednov/ledgerflow/flow"
	"github.com/gregorybednov/ledgerflow/ledger"
)

// Party is the configuration of one ledger participant.
type Party struct {
	Name     string      `mapstructure:"name"`
	Seed     string      `mapstructure:"seed"`
	VaultDir string      `mapstructure:"vault_dir"`
	Listen   string      `mapstructure:"listen"`
	LogLevel string      `mapstructure:"log_level"`
	Notary   Notary      `mapstructure:"notary"`
	Protocol flow.Config `mapstructure:"protocol"`
	Policy   Policy      `mapstructure:"policy"`
	// Base URLs of the other parties' HTTP APIs, by party name.
	Peers map[string]string `mapstructure:"peers"`
}

// Notary names the notary a party submits to. A notary node itself also
// sets Seed.
type Notary struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
	Seed string `mapstructure:"seed"`
	RPC  string `mapstructure:"rpc"`
}

type Policy struct {
	// IOUs at or above this value are refused; zero disables the cap.
	IOUValueLimit int64    `mapstructure:"iou_value_limit"`
	AllowedKinds  []string `mapstructure:"allowed_kinds"`
}

func setDefaults(v *viper.Viper) {
	d := flow.DefaultConfig()
	v.SetDefault("vault_dir", "./vault")
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("notary.name", "Notary")
	v.SetDefault("notary.rpc", "http://127.0.0.1:26657")
	v.SetDefault("protocol.response_timeout", d.ResponseTimeout)
	v.SetDefault("protocol.finality_timeout", d.FinalityTimeout)
	v.SetDefault("protocol.time_tolerance", d.TimeTolerance)
	v.SetDefault("policy.iou_value_limit", 100)
}

// LoadParty reads a TOML party file. LEDGERFLOW_* environment variables
// override file values, e.g. LEDGERFLOW_NOTARY_RPC.
func LoadParty(path string) (*Party, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("ledgerflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("viper read config: %w", err)
	}
	var p Party
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("viper unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	return &p, nil
}

// WriteParty writes p as TOML to path.
func WriteParty(p *Party, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.Set("name", p.Name)
	v.Set("seed", p.Seed)
	v.Set("vault_dir", p.VaultDir)
	v.Set("listen", p.Listen)
	v.Set("log_level", p.LogLevel)
	v.Set("notary", map[string]any{
		"name": p.Notary.Name,
		"key":  p.Notary.Key,
		"seed": p.Notary.Seed,
		"rpc":  p.Notary.RPC,
	})
	v.Set("protocol", map[string]any{
		"response_timeout": p.Protocol.ResponseTimeout.String(),
		"finality_timeout": p.Protocol.FinalityTimeout.String(),
		"time_tolerance":   p.Protocol.TimeTolerance.String(),
	})
	v.Set("policy", map[string]any{
		"iou_value_limit": p.Policy.IOUValueLimit,
		"allowed_kinds":   p.Policy.AllowedKinds,
	})
	if len(p.Peers) > 0 {
		peers := make(map[string]any, len(p.Peers))
		for name, addr := range p.Peers {
			peers[name] = addr
		}
		v.Set("peers", peers)
	}
	return v.WriteConfigAs(path)
}

func (p *Party) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.Seed == "" {
		errs = append(errs, errors.New("seed is required"))
	}
	if p.Notary.Key == "" && p.Notary.Seed == "" {
		errs = append(errs, errors.New("notary.key or notary.seed is required"))
	}
	if p.Notary.Key != "" {
		if _, err := ledger.ParseKey(p.Notary.Key); err != nil {
			errs = append(errs, fmt.Errorf("notary.key: %w", err))
		}
	}
	if p.Protocol.ResponseTimeout <= 0 || p.Protocol.FinalityTimeout <= 0 {
		errs = append(errs, errors.New("protocol timeouts must be positive"))
	}
	if p.Policy.IOUValueLimit < 0 {
		errs = append(errs, errors.New("policy.iou_value_limit must not be negative"))
	}
	for name, addr := range p.Peers {
		if u, err := url.Parse(addr); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("peers.%s: %q is not an http(s) URL", name, addr))
		}
	}
	return errors.Join(errs...)
}

func (p *Party) Keypair() ledger.Keypair {
	return ledger.KeypairFromSeed(p.Seed)
}

func (p *Party) Identity() flow.LocalIdentity {
	return flow.NewLocalIdentity(ledger.PartyID(p.Name), p.Keypair())
}

// NotaryParty resolves the notary's identity. A seed wins over a key.
func (p *Party) NotaryParty() ledger.Party {
	if p.Notary.Seed != "" {
		return ledger.KeypairFromSeed(p.Notary.Seed).Party(ledger.PartyID(p.Notary.Name))
	}
	return ledger.Party{Name: ledger.PartyID(p.Notary.Name), Key: ledger.Key(p.Notary.Key)}
}

// ResponderPolicy builds the policy chain applied before signing.
func (p *Party) ResponderPolicy() flow.Policy {
	var chain flow.Policies
	if len(p.Policy.AllowedKinds) > 0 {
		kinds := make([]ledger.Kind, len(p.Policy.AllowedKinds))
		for i, k := range p.Policy.AllowedKinds {
			kinds[i] = ledger.Kind(k)
		}
		chain = append(chain, flow.RequireKinds(kinds...))
	}
	if p.Policy.IOUValueLimit > 0 {
		chain = append(chain, flow.IOUValueCap(p.Policy.IOUValueLimit))
	}
	return chain
}
