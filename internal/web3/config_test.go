package web3

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := []byte(`chains:
  base:
    type: evm
    chain_id: "8453"
    rpc_url: https://mainnet.base.org
    description: Base mainnet
  sepolia:
    chain_id: "0xaa36a7"
    rpc_url: https://rpc.sepolia.org
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := defs.Names(); len(got) != 2 || got[0] != "base" || got[1] != "sepolia" {
		t.Fatalf("unexpected names %v", got)
	}
	id, err := ParseChainID(defs.Chains["sepolia"].ChainID)
	if err != nil {
		t.Fatalf("parse chain id: %v", err)
	}
	if id.Cmp(big.NewInt(11155111)) != 0 {
		t.Fatalf("unexpected sepolia id %s", id)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty chain map, got %+v", defs.Chains)
	}
}

func TestParseChainID(t *testing.T) {
	if id, err := ParseChainID(""); err != nil || id != nil {
		t.Fatalf("empty id: got %v, %v", id, err)
	}
	if _, err := ParseChainID("-1"); err == nil {
		t.Fatal("expected negative id to be rejected")
	}
	if _, err := ParseChainID("base"); err == nil {
		t.Fatal("expected non numeric id to be rejected")
	}
}

func TestNetworkOf(t *testing.T) {
	got := NetworkOf(Chain{ID: big.NewInt(8453)})
	if got.ProtocolFamily != "evm" || got.ChainID != "8453" {
		t.Fatalf("unexpected network %+v", got)
	}
}
