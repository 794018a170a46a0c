package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/jojomensah89/agentkit/internal/observability/metrics"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/pkg/logger"
)

// Publisher 接收待确认交易对应的记录 ID。
type Publisher interface {
	Publish(ctx context.Context, entryID string) error
}

// Recorder 包装钱包提供者，为每次操作写入记录并上报指标。
// 记录失败只会写日志，被包装操作的返回值保持不变。
type Recorder struct {
	inner     web3.EvmWalletProvider
	store     Store
	chain     string
	publisher Publisher
	logger    *slog.Logger
}

var _ web3.EvmWalletProvider = (*Recorder)(nil)

// RecorderOption 定义可选配置。
type RecorderOption func(*Recorder)

// WithPublisher 在交易广播后投递记录 ID，用于异步跟踪回执。
func WithPublisher(publisher Publisher) RecorderOption {
	return func(r *Recorder) {
		r.publisher = publisher
	}
}

// WithRecorderLogger 指定日志输出。
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder 构造 Recorder。
func NewRecorder(chain string, inner web3.EvmWalletProvider, store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		inner:  inner,
		store:  store,
		chain:  chain,
		logger: logger.Named("journal"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Unwrap 返回被包装的提供者。
func (r *Recorder) Unwrap() web3.EvmWalletProvider {
	return r.inner
}

// SignMessage 实现 web3.EvmWalletProvider。
func (r *Recorder) SignMessage(ctx context.Context, message string) (hexutil.Bytes, error) {
	start := time.Now()
	sig, err := r.inner.SignMessage(ctx, message)
	r.record(ctx, OpSignMessage, "", outcome(err), err, start)
	return sig, err
}

// SignTypedData 实现 web3.EvmWalletProvider。
func (r *Recorder) SignTypedData(ctx context.Context, payload web3.TypedDataPayload) (hexutil.Bytes, error) {
	start := time.Now()
	sig, err := r.inner.SignTypedData(ctx, payload)
	r.record(ctx, OpSignTypedData, "", outcome(err), err, start)
	return sig, err
}

// SignTransaction 实现 web3.EvmWalletProvider。
func (r *Recorder) SignTransaction(ctx context.Context, tx web3.TransactionRequest) (hexutil.Bytes, error) {
	start := time.Now()
	raw, err := r.inner.SignTransaction(ctx, tx)
	r.record(ctx, OpSignTransaction, "", outcome(err), err, start)
	return raw, err
}

// SendTransaction 实现 web3.EvmWalletProvider。成功广播的交易以 pending
// 状态入账，并在配置了 Publisher 时投递给回执跟踪。
func (r *Recorder) SendTransaction(ctx context.Context, tx web3.TransactionRequest) (common.Hash, error) {
	start := time.Now()
	hash, err := r.inner.SendTransaction(ctx, tx)
	if err != nil {
		r.record(ctx, OpSendTransaction, "", StatusFailed, err, start)
		return hash, err
	}

	entry := r.record(ctx, OpSendTransaction, hash.Hex(), StatusPending, nil, start)
	logger.Audit().Info("交易已广播",
		slog.String("chain", r.chain),
		slog.String("address", r.inner.GetAddress()),
		slog.String("tx_hash", hash.Hex()),
	)
	if entry != nil && r.publisher != nil {
		if pubErr := r.publisher.Publish(ctx, entry.ID); pubErr != nil {
			r.logger.Error("投递回执跟踪失败",
				slog.Any("error", pubErr),
				slog.String("entry_id", entry.ID),
				slog.String("tx_hash", entry.TxHash),
			)
		}
	}
	return hash, nil
}

// WaitForTransactionReceipt 实现 web3.EvmWalletProvider。若存在对应的
// pending 交易记录，会同步更新其状态。
func (r *Recorder) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	start := time.Now()
	receipt, err := r.inner.WaitForTransactionReceipt(ctx, hash)

	status := StatusFailed
	if err == nil {
		status = ReceiptStatus(receipt)
	}
	if err == nil {
		r.settlePending(ctx, hash, status, receipt)
	}
	r.record(ctx, OpWaitForReceipt, hash.Hex(), status, err, start)
	return receipt, err
}

// GetAddress 实现 web3.WalletProvider。
func (r *Recorder) GetAddress() string {
	return r.inner.GetAddress()
}

// GetNetwork 实现 web3.WalletProvider。
func (r *Recorder) GetNetwork() (web3.Network, error) {
	return r.inner.GetNetwork()
}

// GetName 实现 web3.WalletProvider。
func (r *Recorder) GetName() string {
	return r.inner.GetName()
}

// ReceiptStatus 将回执映射为记录状态。
func ReceiptStatus(receipt *coretypes.Receipt) Status {
	if receipt != nil && receipt.Status == coretypes.ReceiptStatusSuccessful {
		return StatusConfirmed
	}
	return StatusReverted
}

func (r *Recorder) record(ctx context.Context, op Operation, txHash string, status Status, opErr error, start time.Time) *Entry {
	metrics.ObserveWalletOperation(r.chain, string(op), string(status), time.Since(start))
	if r.store == nil {
		return nil
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Operation: op,
		Provider:  r.inner.GetName(),
		Chain:     r.chain,
		Address:   r.inner.GetAddress(),
		TxHash:    txHash,
		Status:    status,
		Attempts:  1,
		CreatedAt: start.Unix(),
	}
	if network, err := r.inner.GetNetwork(); err == nil {
		entry.ChainID = network.ChainID
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("写入操作记录失败",
			slog.Any("error", err),
			slog.String("operation", string(op)),
			slog.String("chain", r.chain),
		)
		return nil
	}
	return entry
}

func (r *Recorder) settlePending(ctx context.Context, hash common.Hash, status Status, receipt *coretypes.Receipt) {
	if r.store == nil {
		return
	}
	pending, err := r.store.FindByTxHash(ctx, hash.Hex())
	if err != nil || pending.Status != StatusPending {
		return
	}
	update := StatusUpdate{Status: status, Attempts: pending.Attempts}
	if receipt.BlockNumber != nil {
		update.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if err := r.store.UpdateStatus(ctx, pending.ID, update); err != nil {
		r.logger.Error("更新交易记录失败", slog.Any("error", err), slog.String("entry_id", pending.ID))
	}
}

func outcome(err error) Status {
	if err != nil {
		return StatusFailed
	}
	return StatusSucceeded
}
