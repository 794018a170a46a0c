package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/jojomensah89/agentkit/internal/web3"
)

// Config describes how to construct a go-ethereum backed wallet client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID *big.Int
	Signer  Signer
}

// Backend is the node access the client needs to fill, sign and broadcast
// transactions. *ethclient.Client and the simulated backend satisfy it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
}

// Client implements web3.WalletClient on top of go-ethereum.
type Client struct {
	signer  Signer
	backend Backend
	closer  func()

	mu    sync.RWMutex
	chain *web3.Chain
}

var _ web3.WalletClient = (*Client)(nil)

// NewClient dials the configured RPC endpoint. When no chain id is configured
// the node is asked for it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("ethereum rpc url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum node: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := cfg.ChainID
	if chainID == nil {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
	}

	client := NewClientWithBackend(cfg.Signer, &web3.Chain{
		ID:     new(big.Int).Set(chainID),
		Name:   cfg.Name,
		RPCURL: rpcURL,
	}, eth)
	client.closer = eth.Close
	return client, nil
}

// NewClientWithBackend wires a client around an existing backend. signer and
// chain may be nil, leaving the client without an account or network.
func NewClientWithBackend(signer Signer, chain *web3.Chain, backend Backend) *Client {
	c := &Client{signer: signer, backend: backend}
	if chain != nil {
		c.chain = cloneChain(chain)
	}
	return c
}

// Close releases the node connection opened by NewClient.
func (c *Client) Close() {
	if c == nil || c.closer == nil {
		return
	}
	c.closer()
	c.closer = nil
}

// Account returns the bound account or nil.
func (c *Client) Account() *web3.Account {
	if c == nil || c.signer == nil {
		return nil
	}
	return &web3.Account{Address: c.signer.Address()}
}

// Chain returns a copy of the current chain or nil.
func (c *Client) Chain() *web3.Chain {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chain == nil {
		return nil
	}
	return cloneChain(c.chain)
}

// SwitchChain replaces the chain descriptor used for new transactions.
func (c *Client) SwitchChain(chain web3.Chain) {
	c.mu.Lock()
	c.chain = cloneChain(&chain)
	c.mu.Unlock()
}

// SignMessage produces an EIP-191 personal_sign signature.
func (c *Client) SignMessage(_ context.Context, params web3.SignMessageParams) ([]byte, error) {
	signer, err := c.signerFor(params.Account)
	if err != nil {
		return nil, err
	}
	return signWithRecoveryOffset(signer, accounts.TextHash([]byte(params.Message)))
}

// SignTypedData produces an EIP-712 signature. The EIP712Domain type is
// derived from the domain when the caller leaves it out.
func (c *Client) SignTypedData(_ context.Context, params web3.SignTypedDataParams) ([]byte, error) {
	signer, err := c.signerFor(params.Account)
	if err != nil {
		return nil, err
	}
	typed := apitypes.TypedData{
		Types:       withDomainType(params.Types, params.Domain),
		PrimaryType: params.PrimaryType,
		Domain:      params.Domain,
		Message:     params.Message,
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return signWithRecoveryOffset(signer, hash)
}

// SignTransaction fills, signs and RLP encodes a dynamic fee transaction.
func (c *Client) SignTransaction(ctx context.Context, params web3.TransactionParams) ([]byte, error) {
	tx, err := c.buildSignedTransaction(ctx, params)
	if err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return raw, nil
}

// SendTransaction signs the transaction and broadcasts it.
func (c *Client) SendTransaction(ctx context.Context, params web3.TransactionParams) (common.Hash, error) {
	tx, err := c.buildSignedTransaction(ctx, params)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return tx.Hash(), nil
}

func (c *Client) buildSignedTransaction(ctx context.Context, params web3.TransactionParams) (*coretypes.Transaction, error) {
	signer, err := c.signerFor(params.Account)
	if err != nil {
		return nil, err
	}
	if params.Chain.ID == nil {
		return nil, errors.New("transaction chain id is required")
	}
	if c.backend == nil {
		return nil, errors.New("wallet client has no node backend")
	}

	from := signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch pending nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	}

	value := new(big.Int)
	if params.Value != nil {
		value.Set(params.Value)
	}
	gas, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:      from,
		To:        params.To,
		GasFeeCap: feeCap,
		GasTipCap: tip,
		Value:     value,
		Data:      params.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   new(big.Int).Set(params.Chain.ID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        params.To,
		Value:     value,
		Data:      common.CopyBytes(params.Data),
	})
	txSigner := coretypes.LatestSignerForChainID(params.Chain.ID)
	sig, err := signer.SignHash(txSigner.Hash(tx).Bytes())
	if err != nil {
		return nil, err
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, fmt.Errorf("apply transaction signature: %w", err)
	}
	return signed, nil
}

func (c *Client) signerFor(account web3.Account) (Signer, error) {
	if c == nil || c.signer == nil {
		return nil, errors.New("wallet client has no signer")
	}
	if account.Address != c.signer.Address() {
		return nil, fmt.Errorf("account %s is not controlled by this wallet", account.Address.Hex())
	}
	return c.signer, nil
}

// signWithRecoveryOffset signs hash and moves V to 27/28 as expected by
// personal_sign and eth_signTypedData consumers.
func signWithRecoveryOffset(signer Signer, hash []byte) ([]byte, error) {
	sig, err := signer.SignHash(hash)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func withDomainType(types apitypes.Types, domain apitypes.TypedDataDomain) apitypes.Types {
	if _, ok := types["EIP712Domain"]; ok {
		return types
	}
	fields := make([]apitypes.Type, 0, 5)
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}

	merged := make(apitypes.Types, len(types)+1)
	for name, def := range types {
		merged[name] = def
	}
	merged["EIP712Domain"] = fields
	return merged
}

func cloneChain(chain *web3.Chain) *web3.Chain {
	out := *chain
	if chain.ID != nil {
		out.ID = new(big.Int).Set(chain.ID)
	}
	return &out
}
