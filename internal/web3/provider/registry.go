package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jojomensah89/agentkit/internal/config"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/internal/web3/ethereum"
)

// Signer variants selectable through configuration.
const (
	SignerNone       = "none"
	SignerPrivateKey = "private_key"
	SignerKeystore   = "keystore"
)

// Registry manages wallet providers keyed by chain name.
type Registry struct {
	defaultChain string
	providers    map[string]web3.EvmWalletProvider
	closers      []func()
}

// NewRegistry loads chain definitions, builds the configured signer once and
// creates one provider per chain.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	signer, err := NewSigner(cfg.Signer)
	if err != nil {
		return nil, err
	}

	var opts []Option
	if cfg.ReceiptPollIntervalMillis > 0 {
		interval := time.Duration(cfg.ReceiptPollIntervalMillis) * time.Millisecond
		opts = append(opts, WithReceiptClientFactory(ethereum.NewReceiptClientFactory(interval, nil)))
	}

	r := &Registry{providers: make(map[string]web3.EvmWalletProvider)}
	for _, name := range defs.Names() {
		chain := defs.Chains[name]
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = web3.ProtocolFamilyEVM
		}
		if chainType != web3.ProtocolFamilyEVM {
			r.Close()
			return nil, fmt.Errorf("chain %s uses unsupported type %s", name, chain.Type)
		}
		if err := r.addChain(ctx, name, chain.RPCURL, chain.ChainID, signer, opts); err != nil {
			r.Close()
			return nil, err
		}
	}

	defaultChain := cfg.DefaultChain
	if len(r.providers) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		if err := r.addChain(ctx, "default", cfg.RPCURL, cfg.ChainID, signer, opts); err != nil {
			return nil, err
		}
		if defaultChain == "" {
			defaultChain = "default"
		}
	}

	if len(r.providers) == 0 {
		return nil, errors.New("no chain rpc endpoint configured")
	}
	if err := r.setDefault(defaultChain); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewRegistryFromProviders builds a registry around existing providers.
func NewRegistryFromProviders(defaultChain string, providers map[string]web3.EvmWalletProvider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("no wallet providers supplied")
	}
	r := &Registry{providers: make(map[string]web3.EvmWalletProvider, len(providers))}
	for name, p := range providers {
		r.providers[name] = p
	}
	if err := r.setDefault(defaultChain); err != nil {
		return nil, err
	}
	return r, nil
}

// NewSigner builds the signer variant named by cfg.Type. The "none" variant
// yields a nil signer and therefore providers without an account.
func NewSigner(cfg config.SignerConfig) (ethereum.Signer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", SignerNone:
		return nil, nil
	case SignerPrivateKey:
		key := strings.TrimSpace(cfg.PrivateKey)
		if key == "" && cfg.PrivateKeyEnv != "" {
			key = strings.TrimSpace(os.Getenv(cfg.PrivateKeyEnv))
		}
		if key == "" {
			return nil, errors.New("private_key signer needs private_key or private_key_env")
		}
		return ethereum.NewKeySigner(key)
	case SignerKeystore:
		var address common.Address
		if strings.TrimSpace(cfg.Address) != "" {
			if !common.IsHexAddress(cfg.Address) {
				return nil, fmt.Errorf("invalid keystore address %q", cfg.Address)
			}
			address = common.HexToAddress(cfg.Address)
		}
		passphrase := ""
		if cfg.PassphraseEnv != "" {
			passphrase = os.Getenv(cfg.PassphraseEnv)
		}
		return ethereum.NewKeystoreSigner(cfg.KeystoreDir, address, passphrase)
	default:
		return nil, fmt.Errorf("unknown signer type %s", cfg.Type)
	}
}

func (r *Registry) addChain(ctx context.Context, name, rpcURL, rawChainID string, signer ethereum.Signer, opts []Option) error {
	chainID, err := web3.ParseChainID(rawChainID)
	if err != nil {
		return fmt.Errorf("chain %s: %w", name, err)
	}
	client, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:    name,
		RPCURL:  rpcURL,
		ChainID: chainID,
		Signer:  signer,
	})
	if err != nil {
		return fmt.Errorf("initialise chain %s: %w", name, err)
	}
	r.closers = append(r.closers, client.Close)
	r.providers[name] = NewWalletClientProvider(client, opts...)
	return nil
}

func (r *Registry) setDefault(name string) error {
	if name == "" {
		name = r.Chains()[0]
	}
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("default chain %s is not configured", name)
	}
	r.defaultChain = name
	return nil
}

// Decorate replaces every provider with wrap(name, provider).
func (r *Registry) Decorate(wrap func(name string, p web3.EvmWalletProvider) web3.EvmWalletProvider) {
	if r == nil || wrap == nil {
		return
	}
	for name, p := range r.providers {
		r.providers[name] = wrap(name, p)
	}
}

// Default returns the provider of the default chain.
func (r *Registry) Default() (web3.EvmWalletProvider, error) {
	if r == nil {
		return nil, errors.New("wallet provider registry is not initialised")
	}
	p, ok := r.providers[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("default chain %s is not registered", r.defaultChain)
	}
	return p, nil
}

// DefaultChain returns the name of the default chain.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// Provider returns the provider registered under name.
func (r *Registry) Provider(name string) (web3.EvmWalletProvider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Chains returns the registered chain names in sorted order.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases node connections held by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for _, closeFn := range r.closers {
		closeFn()
	}
	r.closers = nil
}
