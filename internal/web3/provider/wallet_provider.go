package provider

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/internal/web3/ethereum"
)

// WalletProviderName identifies WalletClientProvider.
const WalletProviderName = "geth_wallet_provider"

// WalletClientProvider exposes a web3.WalletClient as a web3.EvmWalletProvider.
// Every operation is a single delegation; errors from the wallet client are
// returned as they are.
type WalletClientProvider struct {
	client   web3.WalletClient
	receipts web3.ReceiptClientFactory
}

var _ web3.EvmWalletProvider = (*WalletClientProvider)(nil)

// Option customises a WalletClientProvider.
type Option func(*WalletClientProvider)

// WithReceiptClientFactory overrides how read-only clients are built for
// WaitForTransactionReceipt.
func WithReceiptClientFactory(factory web3.ReceiptClientFactory) Option {
	return func(p *WalletClientProvider) {
		if factory != nil {
			p.receipts = factory
		}
	}
}

// NewWalletClientProvider wraps client.
func NewWalletClientProvider(client web3.WalletClient, opts ...Option) *WalletClientProvider {
	p := &WalletClientProvider{
		client:   client,
		receipts: ethereum.DialReceiptClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SignMessage signs message with the bound account.
func (p *WalletClientProvider) SignMessage(ctx context.Context, message string) (hexutil.Bytes, error) {
	account := p.client.Account()
	if account == nil {
		return nil, web3.ErrAccountMissing
	}
	return p.client.SignMessage(ctx, web3.SignMessageParams{Account: *account, Message: message})
}

// SignTypedData signs an EIP-712 payload with the bound account.
func (p *WalletClientProvider) SignTypedData(ctx context.Context, payload web3.TypedDataPayload) (hexutil.Bytes, error) {
	account := p.client.Account()
	if account == nil {
		return nil, web3.ErrAccountMissing
	}
	return p.client.SignTypedData(ctx, web3.SignTypedDataParams{
		Account:     *account,
		Domain:      payload.Domain,
		Types:       payload.Types,
		PrimaryType: payload.PrimaryType,
		Message:     payload.Message,
	})
}

// SignTransaction signs tx on the wallet client's current chain.
func (p *WalletClientProvider) SignTransaction(ctx context.Context, tx web3.TransactionRequest) (hexutil.Bytes, error) {
	params, err := p.transactionParams(tx)
	if err != nil {
		return nil, err
	}
	return p.client.SignTransaction(ctx, params)
}

// SendTransaction signs and broadcasts tx, returning its hash.
func (p *WalletClientProvider) SendTransaction(ctx context.Context, tx web3.TransactionRequest) (common.Hash, error) {
	params, err := p.transactionParams(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return p.client.SendTransaction(ctx, params)
}

// GetAddress returns the bound account address, or "" when none is bound.
func (p *WalletClientProvider) GetAddress() string {
	account := p.client.Account()
	if account == nil {
		return ""
	}
	return account.Address.Hex()
}

// GetNetwork reports the wallet client's current chain.
func (p *WalletClientProvider) GetNetwork() (web3.Network, error) {
	chain := p.client.Chain()
	if chain == nil || chain.ID == nil {
		return web3.Network{}, web3.ErrChainMissing
	}
	return web3.NetworkOf(*chain), nil
}

// GetName returns WalletProviderName.
func (p *WalletClientProvider) GetName() string {
	return WalletProviderName
}

// WaitForTransactionReceipt builds a read-only client for the current chain
// and blocks until hash is mined or ctx is done.
func (p *WalletClientProvider) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	chain := p.client.Chain()
	if chain == nil || chain.ID == nil {
		return nil, web3.ErrChainMissing
	}
	reader, err := p.receipts(ctx, *chain)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.WaitForTransactionReceipt(ctx, hash)
}

// transactionParams injects the bound account and current chain. The chain
// in tx is ignored.
func (p *WalletClientProvider) transactionParams(tx web3.TransactionRequest) (web3.TransactionParams, error) {
	account := p.client.Account()
	if account == nil {
		return web3.TransactionParams{}, web3.ErrAccountMissing
	}
	chain := p.client.Chain()
	if chain == nil || chain.ID == nil {
		return web3.TransactionParams{}, web3.ErrChainMissing
	}
	return web3.TransactionParams{
		Account: *account,
		To:      tx.To,
		Value:   tx.Value,
		Data:    tx.Data,
		Chain:   *chain,
	}, nil
}
