package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
)

// ProtocolFamilyEVM is the protocol family reported by every EVM provider.
const ProtocolFamilyEVM = "evm"

var (
	// ErrAccountMissing is returned when an operation needs a bound account
	// and the wallet client has none.
	ErrAccountMissing = xerrors.New(xerrors.CodeAccountMissing, "account not found")
	// ErrChainMissing is returned when the wallet client has no chain set.
	ErrChainMissing = xerrors.New(xerrors.CodeChainMissing, "chain not configured")
)

// Network identifies the network a provider is connected to.
type Network struct {
	ProtocolFamily string `json:"protocolFamily"`
	ChainID        string `json:"chainId"`
}

// Chain describes an EVM network the wallet client operates on.
type Chain struct {
	ID     *big.Int `json:"id"`
	Name   string   `json:"name,omitempty"`
	RPCURL string   `json:"rpcUrl,omitempty"`
}

// Account is the identity bound to a wallet client.
type Account struct {
	Address common.Address `json:"address"`
}

// TransactionRequest describes an unsent transaction as supplied by callers.
// ChainID is accepted for compatibility but providers always use the chain of
// their wallet client.
type TransactionRequest struct {
	To      *common.Address `json:"to,omitempty"`
	Value   *big.Int        `json:"value,omitempty"`
	Data    hexutil.Bytes   `json:"data,omitempty"`
	ChainID *big.Int        `json:"chainId,omitempty"`
}

// TypedDataPayload is an EIP-712 payload without the signing account.
type TypedDataPayload struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primaryType"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

// SignMessageParams is forwarded to WalletClient.SignMessage.
type SignMessageParams struct {
	Account Account
	Message string
}

// SignTypedDataParams is forwarded to WalletClient.SignTypedData.
type SignTypedDataParams struct {
	Account     Account
	Domain      apitypes.TypedDataDomain
	Types       apitypes.Types
	PrimaryType string
	Message     apitypes.TypedDataMessage
}

// TransactionParams is the delegation payload for signing and sending.
type TransactionParams struct {
	Account Account
	To      *common.Address
	Value   *big.Int
	Data    []byte
	Chain   Chain
}

// WalletClient is the signing handle a provider wraps. Account and Chain
// return nil when nothing is bound.
type WalletClient interface {
	Account() *Account
	Chain() *Chain
	SignMessage(ctx context.Context, params SignMessageParams) ([]byte, error)
	SignTypedData(ctx context.Context, params SignTypedDataParams) ([]byte, error)
	SignTransaction(ctx context.Context, params TransactionParams) ([]byte, error)
	SendTransaction(ctx context.Context, params TransactionParams) (common.Hash, error)
}

// ReceiptClient is a read-only network client able to await receipts.
type ReceiptClient interface {
	WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

// ReceiptClientFactory builds a ReceiptClient bound to the given chain.
type ReceiptClientFactory func(ctx context.Context, chain Chain) (ReceiptClient, error)

// WalletProvider is the capability set shared by every wallet backend.
type WalletProvider interface {
	GetAddress() string
	GetNetwork() (Network, error)
	GetName() string
}

// EvmWalletProvider adds EVM signing, sending and receipt tracking.
type EvmWalletProvider interface {
	WalletProvider
	SignMessage(ctx context.Context, message string) (hexutil.Bytes, error)
	SignTypedData(ctx context.Context, payload TypedDataPayload) (hexutil.Bytes, error)
	SignTransaction(ctx context.Context, tx TransactionRequest) (hexutil.Bytes, error)
	SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error)
	WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// NetworkOf renders a chain as a Network value.
func NetworkOf(chain Chain) Network {
	id := "0"
	if chain.ID != nil {
		id = chain.ID.String()
	}
	return Network{ProtocolFamily: ProtocolFamilyEVM, ChainID: id}
}
