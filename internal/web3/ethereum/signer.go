package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces secp256k1 signatures for a single account. SignHash returns
// 65 bytes in [R || S || V] form with V in {0, 1}.
type Signer interface {
	Address() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner parses a hex encoded private key, with or without 0x prefix.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeySignerFromECDSA(key), nil
}

// NewKeySignerFromECDSA wraps an existing private key.
func NewKeySignerFromECDSA(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the signer's account address.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignHash signs a 32-byte digest.
func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	return sig, nil
}

// KeystoreSigner signs with an account held in a geth keystore directory.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

// NewKeystoreSigner opens the keystore at dir and unlocks address with the
// passphrase. A zero address selects the only account in the keystore.
func NewKeystoreSigner(dir string, address common.Address, passphrase string) (*KeystoreSigner, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keystore directory is empty")
	}
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)

	var account accounts.Account
	if address == (common.Address{}) {
		all := ks.Accounts()
		if len(all) != 1 {
			return nil, fmt.Errorf("keystore %s holds %d accounts, an address is required", dir, len(all))
		}
		account = all[0]
	} else {
		found, err := ks.Find(accounts.Account{Address: address})
		if err != nil {
			return nil, fmt.Errorf("find keystore account %s: %w", address.Hex(), err)
		}
		account = found
	}

	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("unlock keystore account %s: %w", account.Address.Hex(), err)
	}
	return &KeystoreSigner{ks: ks, account: account}, nil
}

// Address returns the unlocked account address.
func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

// SignHash signs a 32-byte digest with the unlocked key.
func (s *KeystoreSigner) SignHash(hash []byte) ([]byte, error) {
	sig, err := s.ks.SignHash(s.account, hash)
	if err != nil {
		return nil, fmt.Errorf("keystore sign hash: %w", err)
	}
	return sig, nil
}
