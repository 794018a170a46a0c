package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/jojomensah89/agentkit/internal/web3"
)

type scriptedReader struct {
	calls    atomic.Int32
	missing  int32
	receipt  *coretypes.Receipt
	failWith error
}

func (r *scriptedReader) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	n := r.calls.Add(1)
	if r.failWith != nil {
		return nil, r.failWith
	}
	if n <= r.missing {
		return nil, gethcore.NotFound
	}
	return r.receipt, nil
}

func TestReceiptClientPollsUntilFound(t *testing.T) {
	t.Parallel()

	want := &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(12)}
	reader := &scriptedReader{missing: 2, receipt: want}
	client := NewReceiptClient(reader, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := client.WaitForTransactionReceipt(ctx, common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected receipt %+v", got)
	}
	if calls := reader.calls.Load(); calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
}

func TestReceiptClientReturnsReaderErrorUnchanged(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	client := NewReceiptClient(&scriptedReader{failWith: boom}, time.Millisecond)

	_, err := client.WaitForTransactionReceipt(context.Background(), common.Hash{})
	if err != boom {
		t.Fatalf("expected the reader error itself, got %v", err)
	}
}

func TestReceiptClientHonoursContext(t *testing.T) {
	t.Parallel()

	client := NewReceiptClient(&scriptedReader{missing: 1 << 30}, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.WaitForTransactionReceipt(ctx, common.Hash{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReceiptClientFactoryValidatesEndpoint(t *testing.T) {
	t.Parallel()

	factory := NewReceiptClientFactory(time.Second, nil)
	ctx := context.Background()

	if _, err := factory(ctx, web3.Chain{ID: big.NewInt(1)}); err == nil {
		t.Fatal("expected missing rpc url to fail")
	}
	if _, err := factory(ctx, web3.Chain{ID: big.NewInt(1), RPCURL: "ws://localhost:8546"}); err == nil {
		t.Fatal("expected websocket url to be rejected")
	}

	client, err := factory(ctx, web3.Chain{ID: big.NewInt(1), RPCURL: "http://127.0.0.1:8545"})
	if err != nil {
		t.Fatalf("dial http endpoint: %v", err)
	}
	client.Close()
}
