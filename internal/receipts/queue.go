package receipts

import (
	"context"
)

// Handler 处理来自队列的操作记录 ID。
type Handler func(ctx context.Context, entryID string) error

// Producer 负责向队列投递待跟踪的记录。
type Producer interface {
	Publish(ctx context.Context, entryID string) error
	Close() error
}

// Consumer 负责从队列中消费待跟踪的记录。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
