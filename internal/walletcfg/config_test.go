package walletcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadConfigParsesKnownFields(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "config.toml", `
default_fingerprint = 123456
default_network = "mainnet"
derivation_batch_size = 500
max_peers = 30
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DefaultFingerprint != 123456 {
		t.Errorf("DefaultFingerprint = %d, want 123456", cfg.DefaultFingerprint)
	}
	if cfg.DefaultNetwork != "mainnet" {
		t.Errorf("DefaultNetwork = %q, want mainnet", cfg.DefaultNetwork)
	}
	if cfg.MaxPeers != 30 {
		t.Errorf("MaxPeers = %d, want 30", cfg.MaxPeers)
	}
}

func TestNetworkRegistryLookup(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "networks.toml", `
[[network]]
id = "mainnet"
genesis_challenge = "ccd5bb71183532bff220ba46c268991a3ff07eb358e8255a65c30a2645f3570"
address_prefix = "xch"
default_port = 8444

[[network]]
id = "testnet11"
genesis_challenge = "37a90eb5185a9c4439a91ddc98bbadce7b4feba060d50116a067de66bf236615"
address_prefix = "txch"
default_port = 58444
`)

	reg, err := LoadNetworkRegistry(dir)
	if err != nil {
		t.Fatalf("LoadNetworkRegistry: %v", err)
	}
	if len(reg.Networks) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(reg.Networks))
	}

	main, ok := reg.Network("mainnet")
	if !ok {
		t.Fatalf("expected to find mainnet")
	}
	if main.AddressPrefix != "xch" {
		t.Errorf("AddressPrefix = %q, want xch", main.AddressPrefix)
	}

	if _, ok := reg.Network("unknown"); ok {
		t.Errorf("expected unknown network to not be found")
	}
}

func TestDatabasePathAndPeerListPath(t *testing.T) {
	got := DatabasePath("/data", 42, "mainnet")
	want := filepath.Join("/data", "wallets", "42", "mainnet.sqlite")
	if got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}

	gotPeers := PeerListPath("/data", "mainnet")
	wantPeers := filepath.Join("/data", "peers", "mainnet.bin")
	if gotPeers != wantPeers {
		t.Errorf("PeerListPath = %q, want %q", gotPeers, wantPeers)
	}
}

func TestEnsureDataDirsCreatesTree(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureDataDirs(dir, 7, "mainnet"); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "wallets", "7")); err != nil {
		t.Errorf("expected wallets/7 dir to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "peers")); err != nil {
		t.Errorf("expected peers dir to exist: %v", err)
	}
}
