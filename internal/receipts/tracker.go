package receipts

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
	"github.com/jojomensah89/agentkit/internal/journal"
	"github.com/jojomensah89/agentkit/internal/observability/metrics"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/pkg/logger"
)

// minFullQueueBackoff 是队列已满时两次投递之间的最短间隔。
const minFullQueueBackoff = 10 * time.Millisecond

// ProviderSource 按链名称查找钱包提供者，provider.Registry 满足该接口。
type ProviderSource interface {
	Provider(name string) (web3.EvmWalletProvider, bool)
}

// Tracker 从队列消费已广播交易的记录 ID，等待回执并回写记录状态。
type Tracker struct {
	store       journal.Store
	providers   ProviderSource
	consumer    Consumer
	producer    Producer
	workerCount int
	waitTimeout time.Duration
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger

	// requeues 跟踪后台重新投递的协程。
	requeues sync.WaitGroup
}

// TrackerOption 定义可选配置。
type TrackerOption func(*Tracker)

// WithTrackerLogger 指定日志输出。
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) TrackerOption {
	return func(t *Tracker) {
		if workers > 0 {
			t.workerCount = workers
		}
	}
}

// WithWaitTimeout 设置单次等待回执的超时时间。
func WithWaitTimeout(timeout time.Duration) TrackerOption {
	return func(t *Tracker) {
		if timeout > 0 {
			t.waitTimeout = timeout
		}
	}
}

// WithMaxAttempts 设置等待回执的最大次数，超过后记录标记为失败。
func WithMaxAttempts(attempts int) TrackerOption {
	return func(t *Tracker) {
		if attempts > 0 {
			t.maxAttempts = attempts
		}
	}
}

// WithRetryDelay 设置重新投递前的等待时间，0 表示立即投递。
func WithRetryDelay(delay time.Duration) TrackerOption {
	return func(t *Tracker) {
		if delay >= 0 {
			t.retryDelay = delay
		}
	}
}

// NewTracker 构造 Tracker。
func NewTracker(store journal.Store, providers ProviderSource, consumer Consumer, producer Producer, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:       store,
		providers:   providers,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		waitTimeout: time.Minute,
		maxAttempts: 3,
		retryDelay:  time.Second,
		logger:      logger.Named("receipts"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start 启动回执跟踪循环，阻塞直到 ctx 结束。
func (t *Tracker) Start(ctx context.Context) error {
	if t.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置回执队列消费者")
	}
	err := t.consumer.Consume(ctx, t.workerCount, t.Handle)
	t.requeues.Wait()
	return err
}

// Resume 将存储中仍处于 pending 的交易重新投递，用于进程重启后的恢复。
func (t *Tracker) Resume(ctx context.Context, limit int) (int, error) {
	if t.store == nil || t.producer == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "回执跟踪器未初始化")
	}
	pending, err := t.store.List(ctx, journal.BuildListOptions(
		journal.WithStatuses(journal.StatusPending),
		journal.WithOperations(journal.OpSendTransaction),
		journal.WithLimit(limit),
	))
	if err != nil {
		return 0, err
	}
	for i, entry := range pending {
		if err := t.producer.Publish(ctx, entry.ID); err != nil {
			return i, xerrors.Wrap(xerrors.CodeQueueFailure, err, "重新投递待确认交易失败")
		}
	}
	if len(pending) > 0 {
		t.logger.Info("已恢复待确认交易", slog.Int("count", len(pending)))
	}
	return len(pending), nil
}

// Handle 处理单条记录。只有在 ctx 结束时才返回错误，以便外部队列重新投递。
func (t *Tracker) Handle(ctx context.Context, entryID string) error {
	if t.store == nil || t.providers == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "回执跟踪器未初始化")
	}
	entry, err := t.store.Get(ctx, entryID)
	if err != nil {
		if stdErrors.Is(err, journal.ErrEntryNotFound) {
			t.logger.Debug("跳过不存在的记录", slog.String("entry_id", entryID))
			return nil
		}
		t.logger.Error("读取记录失败", slog.Any("error", err), slog.String("entry_id", entryID))
		return err
	}
	if entry.Operation != journal.OpSendTransaction || entry.Status.Terminal() {
		t.logger.Debug("跳过无需跟踪的记录", slog.String("entry_id", entryID), slog.String("status", string(entry.Status)))
		return nil
	}

	provider, ok := t.providers.Provider(entry.Chain)
	if !ok {
		return t.settle(ctx, entry, journal.StatusUpdate{
			Status:   journal.StatusFailed,
			Error:    fmt.Sprintf("chain %s is not configured", entry.Chain),
			Attempts: entry.Attempts,
		})
	}
	provider = unwrap(provider)

	hash, err := parseHash(entry.TxHash)
	if err != nil {
		return t.settle(ctx, entry, journal.StatusUpdate{Status: journal.StatusFailed, Error: err.Error(), Attempts: entry.Attempts})
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.waitTimeout)
	receipt, waitErr := provider.WaitForTransactionReceipt(waitCtx, hash)
	cancel()

	if waitErr == nil {
		update := journal.StatusUpdate{Status: journal.ReceiptStatus(receipt), Attempts: entry.Attempts}
		if receipt != nil && receipt.BlockNumber != nil {
			update.BlockNumber = receipt.BlockNumber.Uint64()
		}
		return t.settle(ctx, entry, update)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return t.retry(ctx, entry, waitErr)
}

func (t *Tracker) retry(ctx context.Context, entry *journal.Entry, cause error) error {
	next := entry.Attempts + 1
	if next > t.maxAttempts {
		return t.settle(ctx, entry, journal.StatusUpdate{
			Status:   journal.StatusFailed,
			Error:    fmt.Sprintf("receipt not available after %d attempts: %v", entry.Attempts, cause),
			Attempts: entry.Attempts,
		})
	}

	if err := t.store.UpdateStatus(ctx, entry.ID, journal.StatusUpdate{
		Status:   journal.StatusPending,
		Error:    cause.Error(),
		Attempts: next,
	}); err != nil {
		t.logger.Error("回写重试状态失败", slog.Any("error", err), slog.String("entry_id", entry.ID))
		return nil
	}
	if t.producer != nil {
		t.requeue(ctx, entry.ID, next)
	}
	return nil
}

// requeue 在后台协程中重新投递，消费协程不会阻塞在自身所在的队列上。
// 队列已满时按 retryDelay 退避重试，直到 ctx 结束。
func (t *Tracker) requeue(ctx context.Context, entryID string, attempts int) {
	t.requeues.Add(1)
	go func() {
		defer t.requeues.Done()
		delay := t.retryDelay
		for {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			err := t.producer.Publish(ctx, entryID)
			if err == nil {
				t.logger.Debug("回执任务已重新排队", slog.String("entry_id", entryID), slog.Int("attempts", attempts))
				return
			}
			if !stdErrors.Is(err, ErrQueueFull) || ctx.Err() != nil {
				// 记录仍为 pending，Resume 会在重启后重新投递。
				t.logger.Error("重新投递回执任务失败",
					slog.Any("error", xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish")),
					slog.String("entry_id", entryID),
				)
				return
			}
			if delay < minFullQueueBackoff {
				delay = minFullQueueBackoff
			}
		}
	}()
}

func (t *Tracker) settle(ctx context.Context, entry *journal.Entry, update journal.StatusUpdate) error {
	if err := t.store.UpdateStatus(ctx, entry.ID, update); err != nil {
		t.logger.Error("回写回执状态失败", slog.Any("error", err), slog.String("entry_id", entry.ID))
		return nil
	}
	metrics.ObserveReceipt(entry.Chain, string(update.Status))

	attrs := []any{
		slog.String("entry_id", entry.ID),
		slog.String("chain", entry.Chain),
		slog.String("tx_hash", entry.TxHash),
		slog.String("status", string(update.Status)),
		slog.Uint64("block_number", update.BlockNumber),
	}
	if update.Status == journal.StatusConfirmed {
		logger.Audit().Info("交易已确认", attrs...)
	} else {
		logger.Audit().Warn("交易未成功确认", append(attrs, slog.String("error", update.Error))...)
	}
	return nil
}

// unwrap 去掉记录装饰器，避免跟踪过程再次写入操作记录。
func unwrap(p web3.EvmWalletProvider) web3.EvmWalletProvider {
	for {
		u, ok := p.(interface{ Unwrap() web3.EvmWalletProvider })
		if !ok {
			return p
		}
		p = u.Unwrap()
	}
}
