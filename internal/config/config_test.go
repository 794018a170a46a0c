package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentkit.json")
	content := `{
  "web3": {"chain_config": "chains.yaml", "signer": {"type": "keystore", "keystore_dir": "keys"}},
  "logging": {"audit": {"enabled": true}}
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chain config not resolved: %q", cfg.Web3.ChainConfig)
	}
	if cfg.Web3.Signer.KeystoreDir != filepath.Join(dir, "keys") {
		t.Fatalf("keystore dir not resolved: %q", cfg.Web3.Signer.KeystoreDir)
	}
	if cfg.Journal.Driver != "memory" || cfg.Receipts.Driver != "memory" {
		t.Fatalf("unexpected drivers %q/%q", cfg.Journal.Driver, cfg.Receipts.Driver)
	}
	if cfg.Receipts.Workers != 4 || cfg.Receipts.MaxAttempts != 3 {
		t.Fatalf("unexpected receipt defaults %+v", cfg.Receipts)
	}
	if cfg.Logging.Audit.Path != filepath.Join(dir, "data", "audit.log") {
		t.Fatalf("unexpected audit path %q", cfg.Logging.Audit.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected empty path error")
	}
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveTokens(t *testing.T) {
	t.Setenv("AGENTKIT_TEST_TOKENS", " a , ,b")
	cfg := AuthConfig{Tokens: []string{"static", " "}, TokensEnv: "AGENTKIT_TEST_TOKENS"}

	got := cfg.ResolveTokens()
	if len(got) != 3 || got[0] != "static" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected tokens %v", got)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/agentkit.json")
	if got := ResolvePath("explicit.json"); got != "explicit.json" {
		t.Fatalf("explicit path ignored: %q", got)
	}
	if got := ResolvePath(""); got != "/etc/agentkit.json" {
		t.Fatalf("env path ignored: %q", got)
	}
}
