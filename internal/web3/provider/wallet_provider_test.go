package provider

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/jojomensah89/agentkit/internal/web3"
)

type fakeWalletClient struct {
	mu      sync.Mutex
	account *web3.Account
	chain   *web3.Chain

	signature []byte
	raw       []byte
	hash      common.Hash
	err       error

	messageCalls []web3.SignMessageParams
	typedCalls   []web3.SignTypedDataParams
	signTxCalls  []web3.TransactionParams
	sendTxCalls  []web3.TransactionParams
}

func (f *fakeWalletClient) Account() *web3.Account { return f.account }

func (f *fakeWalletClient) Chain() *web3.Chain {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chain == nil {
		return nil
	}
	c := *f.chain
	return &c
}

func (f *fakeWalletClient) setChainID(id int64) {
	f.mu.Lock()
	f.chain = &web3.Chain{ID: big.NewInt(id), RPCURL: f.chain.RPCURL}
	f.mu.Unlock()
}

func (f *fakeWalletClient) SignMessage(_ context.Context, p web3.SignMessageParams) ([]byte, error) {
	f.messageCalls = append(f.messageCalls, p)
	return f.signature, f.err
}

func (f *fakeWalletClient) SignTypedData(_ context.Context, p web3.SignTypedDataParams) ([]byte, error) {
	f.typedCalls = append(f.typedCalls, p)
	return f.signature, f.err
}

func (f *fakeWalletClient) SignTransaction(_ context.Context, p web3.TransactionParams) ([]byte, error) {
	f.signTxCalls = append(f.signTxCalls, p)
	return f.raw, f.err
}

func (f *fakeWalletClient) SendTransaction(_ context.Context, p web3.TransactionParams) (common.Hash, error) {
	f.sendTxCalls = append(f.sendTxCalls, p)
	return f.hash, f.err
}

func (f *fakeWalletClient) calls() int {
	return len(f.messageCalls) + len(f.typedCalls) + len(f.signTxCalls) + len(f.sendTxCalls)
}

type fakeReceiptClient struct {
	receipt *coretypes.Receipt
	err     error
	closed  bool
}

func (f *fakeReceiptClient) WaitForTransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeReceiptClient) Close() { f.closed = true }

var (
	accountABC = web3.Account{Address: common.HexToAddress("0xABC0000000000000000000000000000000000ABC")}
	addressDEF = common.HexToAddress("0xDEF0000000000000000000000000000000000DEF")
)

func newBoundClient() *fakeWalletClient {
	account := accountABC
	return &fakeWalletClient{
		account: &account,
		chain:   &web3.Chain{ID: big.NewInt(8453), RPCURL: "https://mainnet.base.org"},
	}
}

func TestSignMessageDelegatesWithAccount(t *testing.T) {
	client := newBoundClient()
	client.signature = []byte{0xde, 0xad}
	p := NewWalletClientProvider(client)

	sig, err := p.SignMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, hexutil.Bytes{0xde, 0xad}, sig)
	require.Len(t, client.messageCalls, 1)
	require.Equal(t, web3.SignMessageParams{Account: accountABC, Message: "hello"}, client.messageCalls[0])
}

func TestSignMessageWithoutAccountFailsBeforeDelegation(t *testing.T) {
	client := &fakeWalletClient{chain: &web3.Chain{ID: big.NewInt(1)}}
	p := NewWalletClientProvider(client)

	_, err := p.SignMessage(context.Background(), "hello")
	require.ErrorIs(t, err, web3.ErrAccountMissing)
	require.Zero(t, client.calls())
}

func TestOperationsRequireAccount(t *testing.T) {
	client := &fakeWalletClient{chain: &web3.Chain{ID: big.NewInt(1)}}
	p := NewWalletClientProvider(client)
	ctx := context.Background()

	_, err := p.SignTypedData(ctx, web3.TypedDataPayload{PrimaryType: "Mail"})
	require.ErrorIs(t, err, web3.ErrAccountMissing)
	_, err = p.SignTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrAccountMissing)
	_, err = p.SendTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrAccountMissing)
	require.Zero(t, client.calls())
}

func TestTransactionsRequireChain(t *testing.T) {
	client := newBoundClient()
	client.chain = nil
	p := NewWalletClientProvider(client)
	ctx := context.Background()

	_, err := p.SignTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.SendTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.GetNetwork()
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.WaitForTransactionReceipt(ctx, common.Hash{})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	require.Zero(t, client.calls())
}

func TestChainWithoutIDIsTreatedAsMissing(t *testing.T) {
	client := newBoundClient()
	client.chain = &web3.Chain{RPCURL: "https://mainnet.base.org"}
	dialed := 0
	p := NewWalletClientProvider(client, WithReceiptClientFactory(
		func(context.Context, web3.Chain) (web3.ReceiptClient, error) {
			dialed++
			return &fakeReceiptClient{}, nil
		},
	))
	ctx := context.Background()

	_, err := p.SignTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.SendTransaction(ctx, web3.TransactionRequest{To: &addressDEF})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.GetNetwork()
	require.ErrorIs(t, err, web3.ErrChainMissing)
	_, err = p.WaitForTransactionReceipt(ctx, common.Hash{})
	require.ErrorIs(t, err, web3.ErrChainMissing)
	require.Zero(t, client.calls())
	require.Zero(t, dialed)
}

func TestSignTypedDataForwardsPayload(t *testing.T) {
	client := newBoundClient()
	client.signature = []byte{0x01}
	p := NewWalletClientProvider(client)

	payload := web3.TypedDataPayload{
		Domain:      apitypes.TypedDataDomain{Name: "Ether Mail", Version: "1"},
		Types:       apitypes.Types{"Mail": {{Name: "contents", Type: "string"}}},
		PrimaryType: "Mail",
		Message:     apitypes.TypedDataMessage{"contents": "hi"},
	}
	_, err := p.SignTypedData(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, client.typedCalls, 1)

	got := client.typedCalls[0]
	require.Equal(t, accountABC, got.Account)
	require.Equal(t, payload.Domain, got.Domain)
	require.Equal(t, payload.Types, got.Types)
	require.Equal(t, payload.PrimaryType, got.PrimaryType)
	require.Equal(t, payload.Message, got.Message)
}

func TestSendTransactionForwardsHandleChain(t *testing.T) {
	client := newBoundClient()
	client.hash = common.HexToHash("0xfeed")
	p := NewWalletClientProvider(client)

	hash, err := p.SendTransaction(context.Background(), web3.TransactionRequest{
		To:    &addressDEF,
		Value: big.NewInt(100),
		Data:  hexutil.Bytes{},
	})
	require.NoError(t, err)
	require.Equal(t, client.hash, hash)

	require.Len(t, client.sendTxCalls, 1)
	sent := client.sendTxCalls[0]
	require.Equal(t, accountABC, sent.Account)
	require.Equal(t, addressDEF, *sent.To)
	require.Equal(t, big.NewInt(100), sent.Value)
	require.Empty(t, sent.Data)
	require.Equal(t, int64(8453), sent.Chain.ID.Int64())
}

func TestTransactionChainInInputIsIgnored(t *testing.T) {
	client := newBoundClient()
	client.raw = []byte{0x02, 0xf8}
	p := NewWalletClientProvider(client)

	raw, err := p.SignTransaction(context.Background(), web3.TransactionRequest{
		To:      &addressDEF,
		ChainID: big.NewInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, hexutil.Bytes{0x02, 0xf8}, raw)
	require.Equal(t, int64(8453), client.signTxCalls[0].Chain.ID.Int64())

	_, err = p.SendTransaction(context.Background(), web3.TransactionRequest{To: &addressDEF, ChainID: big.NewInt(10)})
	require.NoError(t, err)
	require.Equal(t, int64(8453), client.sendTxCalls[0].Chain.ID.Int64())
}

func TestDelegatedErrorsAreReturnedUnchanged(t *testing.T) {
	client := newBoundClient()
	client.err = errors.New("insufficient funds for gas * price + value")
	p := NewWalletClientProvider(client)
	ctx := context.Background()

	_, err := p.SignMessage(ctx, "hello")
	require.Same(t, client.err, err)
	_, err = p.SignTypedData(ctx, web3.TypedDataPayload{})
	require.Same(t, client.err, err)
	_, err = p.SignTransaction(ctx, web3.TransactionRequest{})
	require.Same(t, client.err, err)
	_, err = p.SendTransaction(ctx, web3.TransactionRequest{})
	require.Same(t, client.err, err)
}

func TestGetAddress(t *testing.T) {
	require.Equal(t, accountABC.Address.Hex(), NewWalletClientProvider(newBoundClient()).GetAddress())
	require.Equal(t, "", NewWalletClientProvider(&fakeWalletClient{}).GetAddress())
}

func TestGetNetworkTracksChainChanges(t *testing.T) {
	client := newBoundClient()
	p := NewWalletClientProvider(client)

	network, err := p.GetNetwork()
	require.NoError(t, err)
	require.Equal(t, web3.Network{ProtocolFamily: "evm", ChainID: "8453"}, network)

	client.setChainID(84532)
	network, err = p.GetNetwork()
	require.NoError(t, err)
	require.Equal(t, "84532", network.ChainID)
}

func TestGetNameIsConstant(t *testing.T) {
	bound := NewWalletClientProvider(newBoundClient())
	empty := NewWalletClientProvider(&fakeWalletClient{})

	require.Equal(t, "geth_wallet_provider", bound.GetName())
	require.Equal(t, bound.GetName(), empty.GetName())
	require.Equal(t, bound.GetName(), bound.GetName())
}

func TestWaitForTransactionReceiptUsesFreshClientForCurrentChain(t *testing.T) {
	client := newBoundClient()
	want := &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful}

	var dialed []web3.Chain
	var built []*fakeReceiptClient
	factory := func(_ context.Context, chain web3.Chain) (web3.ReceiptClient, error) {
		dialed = append(dialed, chain)
		rc := &fakeReceiptClient{receipt: want}
		built = append(built, rc)
		return rc, nil
	}
	p := NewWalletClientProvider(client, WithReceiptClientFactory(factory))

	got, err := p.WaitForTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Same(t, want, got)

	client.setChainID(10)
	_, err = p.WaitForTransactionReceipt(context.Background(), common.HexToHash("0x02"))
	require.NoError(t, err)

	require.Len(t, dialed, 2)
	require.Equal(t, int64(8453), dialed[0].ID.Int64())
	require.Equal(t, int64(10), dialed[1].ID.Int64())
	require.True(t, built[0].closed)
	require.True(t, built[1].closed)
}

func TestWaitForTransactionReceiptPropagatesErrors(t *testing.T) {
	dialErr := errors.New("dial failed")
	p := NewWalletClientProvider(newBoundClient(), WithReceiptClientFactory(
		func(context.Context, web3.Chain) (web3.ReceiptClient, error) { return nil, dialErr },
	))
	_, err := p.WaitForTransactionReceipt(context.Background(), common.Hash{})
	require.Same(t, dialErr, err)

	waitErr := errors.New("transaction dropped")
	rc := &fakeReceiptClient{err: waitErr}
	p = NewWalletClientProvider(newBoundClient(), WithReceiptClientFactory(
		func(context.Context, web3.Chain) (web3.ReceiptClient, error) { return rc, nil },
	))
	_, err = p.WaitForTransactionReceipt(context.Background(), common.Hash{})
	require.Same(t, waitErr, err)
	require.True(t, rc.closed)
}
