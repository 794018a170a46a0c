package receipts

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueClosed 表示队列已关闭。
	ErrQueueClosed = errors.New("回执队列已关闭")
	// ErrQueueFull 表示内存队列已满，记录保持 pending。
	ErrQueueFull = errors.New("回执队列已满")
)

// MemoryQueue 使用 channel 实现进程内队列，适合单实例部署与测试。
type MemoryQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 将记录 ID 投递到队列。投递不会阻塞，队列已满时返回 ErrQueueFull。
func (q *MemoryQueue) Publish(ctx context.Context, entryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- entryID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume 启动指定数量的工作协程消费队列，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case entryID, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, entryID)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrQueueClosed
}

// Len 返回队列中等待处理的数量。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}
