package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gregorybednov/ledgerflow/ledger"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "party.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadPartyDefaults(t *testing.T) {
	notaryKey := ledger.KeypairFromSeed("Notary").Public()
	path := writeFile(t, `
name = "Lender"
seed = "lender-seed"

[notary]
key = "`+string(notaryKey)+`"

[protocol]
response_timeout = "5s"
`)
	p, err := LoadParty(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Protocol.ResponseTimeout != 5*time.Second || p.Protocol.FinalityTimeout != time.Minute {
		t.Fatalf("unexpected timeouts %+v", p.Protocol)
	}
	if p.Policy.IOUValueLimit != 100 {
		t.Fatalf("expected default IOU limit 100, got %d", p.Policy.IOUValueLimit)
	}
	if n := p.NotaryParty(); n.Name != "Notary" || n.Key != notaryKey {
		t.Fatalf("unexpected notary %+v", n)
	}
	if p.Identity().Me() != ledger.KeypairFromSeed("lender-seed").Party("Lender") {
		t.Fatalf("identity does not match the seed")
	}
	if err := p.ResponderPolicy().Check(ledger.GenerateIOUCreate(p.NotaryParty(), p.Identity().Me(), p.NotaryParty(), 500).Transaction()); err == nil {
		t.Fatalf("expected the default cap to refuse 500")
	}
}

func TestLoadPartyEnvironmentOverride(t *testing.T) {
	path := writeFile(t, `
name = "Borrower"
seed = "borrower-seed"

[notary]
seed = "notary-seed"
`)
	t.Setenv("LEDGERFLOW_NOTARY_RPC", "http://notary:26657")
	p, err := LoadParty(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Notary.RPC != "http://notary:26657" {
		t.Fatalf("expected env override, got %q", p.Notary.RPC)
	}
}

func TestLoadPartyValidation(t *testing.T) {
	path := writeFile(t, `
[notary]
key = "not-hex"
`)
	_, err := LoadParty(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"name is required", "seed is required", "notary.key"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestWritePartyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "party.toml")
	in := &Party{
		Name:     "MegaCorp",
		Seed:     "mega",
		VaultDir: "/var/lib/megacorp",
		Listen:   "127.0.0.1:9000",
		LogLevel: "debug",
		Notary:   Notary{Name: "Notary", Seed: "notary-seed", RPC: "http://127.0.0.1:26657"},
		Policy:   Policy{IOUValueLimit: 10, AllowedKinds: []string{"iou"}},
		Peers:    map[string]string{"MiniCorp": "http://10.0.0.2:8080"},
	}
	in.Protocol.ResponseTimeout = 3 * time.Second
	in.Protocol.FinalityTimeout = 9 * time.Second
	in.Protocol.TimeTolerance = time.Second
	if err := WriteParty(in, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := LoadParty(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Name != in.Name || out.VaultDir != in.VaultDir || out.Protocol != in.Protocol || out.Policy.IOUValueLimit != 10 {
		t.Fatalf("round trip changed config: %+v", out)
	}
	if len(out.Policy.AllowedKinds) != 1 || out.Policy.AllowedKinds[0] != "iou" {
		t.Fatalf("allowed kinds lost: %v", out.Policy.AllowedKinds)
	}
	// Map keys come back lowercased.
	if out.Peers["minicorp"] != "http://10.0.0.2:8080" {
		t.Fatalf("peers lost: %v", out.Peers)
	}
}

func TestLoadPartyPeers(t *testing.T) {
	path := writeFile(t, `
name = "Lender"
seed = "lender-seed"

[notary]
seed = "notary-seed"

[peers]
Borrower = "http://borrower:8080"
Stranger = "borrower:8080"
`)
	_, err := LoadParty(path)
	if err == nil || !strings.Contains(err.Error(), "peers.stranger") {
		t.Fatalf("expected the scheme-less peer to be refused, got %v", err)
	}
}

func TestInitNotaryFilesKeepsKeys(t *testing.T) {
	config := NotaryDefaults(filepath.Join(t.TempDir(), "config", "config.toml"))
	if err := InitNotaryFiles(config, true, "ledgerflow-test"); err != nil {
		t.Fatalf("init: %v", err)
	}
	first, err := os.ReadFile(config.PrivValidatorKeyFile())
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	if err := InitNotaryFiles(config, false, ""); err != nil {
		t.Fatalf("second init: %v", err)
	}
	second, err := os.ReadFile(config.PrivValidatorKeyFile())
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("a second init replaced the validator key")
	}
}

func TestParsePeerList(t *testing.T) {
	peers, err := ParsePeerList("abc123@tcp://10.0.0.1:26656, def456@[200::1]:26656 ,789abc@host")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(peers))
	}
	if p := peers[0]; p.ID != "abc123" || p.Proto != "tcp" || p.Address != "10.0.0.1" || p.Port == nil || *p.Port != 26656 {
		t.Fatalf("unexpected first peer %+v", p)
	}
	if p := peers[1]; p.Proto != "" || p.Address != "[200::1]" {
		t.Fatalf("unexpected second peer %+v", p)
	}
	if p := peers[2]; p.Port != nil || p.Address != "host" {
		t.Fatalf("unexpected third peer %+v", p)
	}

	if err := ParsePeers(""); err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if err := ParsePeers("not a peer"); err == nil {
		t.Fatalf("expected error for malformed peer")
	}
}

func TestNotaryConfigRoundTrip(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config", "config.toml")
	config := NotaryDefaults(configFile)
	config.Moniker = "notary-0"
	config.P2P.PersistentPeers = "abc123@tcp://10.0.0.1:26656"
	config.Consensus.TimeoutCommit = 500 * time.Millisecond

	if err := InitNotaryFiles(config, true, "ledgerflow-test"); err != nil {
		t.Fatalf("init files: %v", err)
	}
	if err := WriteNotaryConfig(config, configFile); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadNotaryConfig(configFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Moniker != "notary-0" || got.P2P.PersistentPeers != config.P2P.PersistentPeers {
		t.Fatalf("unexpected config %+v", got.BaseConfig)
	}
	if got.Consensus.TimeoutCommit != 500*time.Millisecond {
		t.Fatalf("unexpected timeout_commit %s", got.Consensus.TimeoutCommit)
	}
	if _, err := os.Stat(got.GenesisFile()); err != nil {
		t.Fatalf("genesis missing: %v", err)
	}
}
