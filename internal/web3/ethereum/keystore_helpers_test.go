package ethereum

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// importLightKey stores key with light scrypt parameters so tests stay fast.
func importLightKey(t *testing.T, dir string, key *ecdsa.PrivateKey, passphrase string) common.Address {
	t.Helper()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, passphrase)
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	return account.Address
}
