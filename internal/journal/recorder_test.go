package journal

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/jojomensah89/agentkit/internal/web3"
)

type stubProvider struct {
	address string
	err     error
	hash    common.Hash
	receipt *coretypes.Receipt
}

func (s *stubProvider) GetAddress() string { return s.address }
func (s *stubProvider) GetName() string    { return "geth_wallet_provider" }
func (s *stubProvider) GetNetwork() (web3.Network, error) {
	return web3.Network{ProtocolFamily: web3.ProtocolFamilyEVM, ChainID: "8453"}, nil
}

func (s *stubProvider) SignMessage(context.Context, string) (hexutil.Bytes, error) {
	return hexutil.Bytes{0x01}, s.err
}

func (s *stubProvider) SignTypedData(context.Context, web3.TypedDataPayload) (hexutil.Bytes, error) {
	return hexutil.Bytes{0x02}, s.err
}

func (s *stubProvider) SignTransaction(context.Context, web3.TransactionRequest) (hexutil.Bytes, error) {
	return hexutil.Bytes{0x03}, s.err
}

func (s *stubProvider) SendTransaction(context.Context, web3.TransactionRequest) (common.Hash, error) {
	return s.hash, s.err
}

func (s *stubProvider) WaitForTransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	return s.receipt, s.err
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, *Entry) error { return errors.New("disk full") }

func TestRecorderRecordsSignatures(t *testing.T) {
	store := NewMemoryStore(16)
	inner := &stubProvider{address: "0xABC"}
	rec := NewRecorder("base", inner, store)
	ctx := context.Background()

	sig, err := rec.SignMessage(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, hexutil.Bytes{0x01}, sig)

	_, err = rec.SignTypedData(ctx, web3.TypedDataPayload{})
	require.NoError(t, err)

	entries, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, OpSignTypedData, entries[0].Operation)
	require.Equal(t, OpSignMessage, entries[1].Operation)
	for _, entry := range entries {
		require.Equal(t, StatusSucceeded, entry.Status)
		require.Equal(t, "base", entry.Chain)
		require.Equal(t, "0xABC", entry.Address)
		require.Equal(t, "8453", entry.ChainID)
		require.Equal(t, "geth_wallet_provider", entry.Provider)
		require.NotEmpty(t, entry.ID)
	}
}

func TestRecorderPassesErrorsThrough(t *testing.T) {
	store := NewMemoryStore(16)
	inner := &stubProvider{err: web3.ErrAccountMissing}
	rec := NewRecorder("base", inner, store)

	_, err := rec.SignTransaction(context.Background(), web3.TransactionRequest{})
	require.Same(t, web3.ErrAccountMissing, err)

	entries, _ := store.List(context.Background(), ListOptions{})
	require.Len(t, entries, 1)
	require.Equal(t, StatusFailed, entries[0].Status)
	require.Contains(t, entries[0].Error, "account not found")
}

func TestRecorderPublishesSentTransactions(t *testing.T) {
	store := NewMemoryStore(16)
	publisher := &recordingPublisher{}
	inner := &stubProvider{address: "0xABC", hash: common.HexToHash("0xbeef")}
	rec := NewRecorder("base", inner, store, WithPublisher(publisher))

	hash, err := rec.SendTransaction(context.Background(), web3.TransactionRequest{Value: big.NewInt(100)})
	require.NoError(t, err)
	require.Equal(t, inner.hash, hash)

	require.Len(t, publisher.ids, 1)
	entry, err := store.Get(context.Background(), publisher.ids[0])
	require.NoError(t, err)
	require.Equal(t, OpSendTransaction, entry.Operation)
	require.Equal(t, StatusPending, entry.Status)
	require.Equal(t, hash.Hex(), entry.TxHash)
}

func TestRecorderPublishFailureDoesNotFailSend(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	inner := &stubProvider{hash: common.HexToHash("0x01")}
	rec := NewRecorder("base", inner, NewMemoryStore(4), WithPublisher(publisher))

	hash, err := rec.SendTransaction(context.Background(), web3.TransactionRequest{})
	require.NoError(t, err)
	require.Equal(t, inner.hash, hash)
}

func TestRecorderStoreFailureDoesNotFailOperation(t *testing.T) {
	publisher := &recordingPublisher{}
	inner := &stubProvider{hash: common.HexToHash("0x01")}
	rec := NewRecorder("base", inner, failingStore{NewMemoryStore(4)}, WithPublisher(publisher))

	_, err := rec.SignMessage(context.Background(), "hello")
	require.NoError(t, err)
	_, err = rec.SendTransaction(context.Background(), web3.TransactionRequest{})
	require.NoError(t, err)
	require.Empty(t, publisher.ids)
}

func TestRecorderWaitSettlesPendingSend(t *testing.T) {
	store := NewMemoryStore(16)
	hash := common.HexToHash("0xcafe")
	inner := &stubProvider{
		hash:    hash,
		receipt: &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(77)},
	}
	rec := NewRecorder("base", inner, store)
	ctx := context.Background()

	_, err := rec.SendTransaction(ctx, web3.TransactionRequest{})
	require.NoError(t, err)

	receipt, err := rec.WaitForTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.Same(t, inner.receipt, receipt)

	send, err := store.FindByTxHash(ctx, hash.Hex())
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, send.Status)
	require.Equal(t, uint64(77), send.BlockNumber)

	waits, _ := store.List(ctx, BuildListOptions(WithOperations(OpWaitForReceipt)))
	require.Len(t, waits, 1)
	require.Equal(t, StatusConfirmed, waits[0].Status)
}

func TestReceiptStatus(t *testing.T) {
	require.Equal(t, StatusConfirmed, ReceiptStatus(&coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful}))
	require.Equal(t, StatusReverted, ReceiptStatus(&coretypes.Receipt{Status: coretypes.ReceiptStatusFailed}))
	require.Equal(t, StatusReverted, ReceiptStatus(nil))
}
