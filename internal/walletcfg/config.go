// Package walletcfg resolves the process-wide configuration this wallet
// engine needs: the data directory, the three on-disk TOML documents it
// holds, and the process-lifetime globals (logger, data dir) that
// initialize once and stay frozen for the life of the process.
package walletcfg

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

var (
	initOnce sync.Once
	dataDir  string
	logger   *log.Logger
)

// Init resolves the process-wide data directory and logger exactly once.
// Subsequent calls are no-ops.
func Init(dir string) {
	initOnce.Do(func() {
		dataDir = dir
		logger = log.New(os.Stdout, "[walletd] ", log.LstdFlags)
	})
}

// DataDir returns the process-wide data directory. Init must have been
// called first; an empty return means it was not.
func DataDir() string { return dataDir }

// Logger returns the process-wide logger, prefixed consistently so every
// component's log lines share one recognizable shape.
func Logger() *log.Logger { return logger }

// Config mirrors <data>/config.toml: process-wide, non-secret settings.
type Config struct {
	DefaultFingerprint uint32 `toml:"default_fingerprint"`
	DefaultNetwork     string `toml:"default_network"`
	DerivationBatch    uint32 `toml:"derivation_batch_size"`
	MaxPeers           int    `toml:"max_peers"`
}

// WalletEntry is one row of <data>/wallets.toml: the registry of wallets
// this engine knows about, keyed by fingerprint.
type WalletEntry struct {
	Fingerprint uint32 `toml:"fingerprint"`
	Name        string `toml:"name"`
	Kind        string `toml:"kind"` // "hot" | "cold" | "watch_only"
}

// WalletRegistry is the parsed form of wallets.toml.
type WalletRegistry struct {
	Wallets []WalletEntry `toml:"wallet"`
}

// NetworkDef is one row of <data>/networks.toml: the chain parameters a
// peer client and puzzle classifier need to validate and address coins on
// a given network.
type NetworkDef struct {
	ID               string   `toml:"id"`
	GenesisChallenge string   `toml:"genesis_challenge"`
	AddressPrefix    string   `toml:"address_prefix"`
	DefaultPort      uint16   `toml:"default_port"`
	AggSigMeExtra    string   `toml:"agg_sig_me_extra_data"`
	DNSIntroducers   []string `toml:"dns_introducers"`
}

// NetworkRegistry is the parsed form of networks.toml.
type NetworkRegistry struct {
	Networks []NetworkDef `toml:"network"`
}

// LoadConfig reads <data>/config.toml.
func LoadConfig(dataDir string) (Config, error) {
	var cfg Config
	path := filepath.Join(dataDir, "config.toml")
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("walletcfg: load config.toml: %w", err)
	}
	return cfg, nil
}

// LoadWalletRegistry reads <data>/wallets.toml.
func LoadWalletRegistry(dataDir string) (WalletRegistry, error) {
	var reg WalletRegistry
	path := filepath.Join(dataDir, "wallets.toml")
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		return WalletRegistry{}, fmt.Errorf("walletcfg: load wallets.toml: %w", err)
	}
	return reg, nil
}

// LoadNetworkRegistry reads <data>/networks.toml.
func LoadNetworkRegistry(dataDir string) (NetworkRegistry, error) {
	var reg NetworkRegistry
	path := filepath.Join(dataDir, "networks.toml")
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		return NetworkRegistry{}, fmt.Errorf("walletcfg: load networks.toml: %w", err)
	}
	return reg, nil
}

// Network looks up a network definition by id.
func (r NetworkRegistry) Network(id string) (NetworkDef, bool) {
	for _, n := range r.Networks {
		if n.ID == id {
			return n, true
		}
	}
	return NetworkDef{}, false
}

// Wallet looks up a wallet registry entry by fingerprint.
func (r WalletRegistry) Wallet(fingerprint uint32) (WalletEntry, bool) {
	for _, w := range r.Wallets {
		if w.Fingerprint == fingerprint {
			return w, true
		}
	}
	return WalletEntry{}, false
}

// DatabasePath returns the per-(fingerprint,network) SQLite file path:
// <data>/wallets/<fp>/<network>.sqlite.
func DatabasePath(dataDir string, fingerprint uint32, network string) string {
	return filepath.Join(dataDir, "wallets", fmt.Sprintf("%d", fingerprint), network+".sqlite")
}

// PeerListPath returns the per-network peer ban/known-good list file:
// <data>/peers/<network>.bin.
func PeerListPath(dataDir string, network string) string {
	return filepath.Join(dataDir, "peers", network+".bin")
}

// EnsureDataDirs creates the directory tree LoadConfig/DatabasePath/
// PeerListPath expect to exist, failing fast at startup rather than
// lazily creating directories mid-request.
func EnsureDataDirs(dataDir string, fingerprint uint32, network string) error {
	dirs := []string{
		filepath.Dir(DatabasePath(dataDir, fingerprint, network)),
		filepath.Dir(PeerListPath(dataDir, network)),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("walletcfg: create %s: %w", d, err)
		}
	}
	return nil
}

// RequireEnv reads a required environment variable and exits if unset,
// matching cmd/engine/main.go's requireEnv fail-fast helper.
func RequireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

// GetEnvOrDefault returns the env var value or a fallback for non-secret
// settings, matching cmd/engine/main.go's getEnvOrDefault helper.
func GetEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
