package journal

import (
	"context"
	"strings"
)

// Store 抽象了操作记录的持久化接口。FindByTxHash 只匹配 send_transaction 记录。
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	FindByTxHash(ctx context.Context, hash string) (*Entry, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	List(ctx context.Context, opts ListOptions) ([]*Entry, error)
	Close() error
}

// ListOptions 控制记录查询的过滤条件。
type ListOptions struct {
	Limit      int
	Statuses   []Status
	Operations []Operation
	Chain      string
	Address    string
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回数量。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithStatuses 按状态过滤。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithOperations 按操作类型过滤。
func WithOperations(ops ...Operation) ListOption {
	return func(opts *ListOptions) {
		opts.Operations = append(opts.Operations[:0], ops...)
	}
}

// WithChain 按链名称过滤。
func WithChain(chain string) ListOption {
	return func(opts *ListOptions) {
		opts.Chain = chain
	}
}

// WithAddress 按账户地址过滤，不区分大小写。
func WithAddress(address string) ListOption {
	return func(opts *ListOptions) {
		opts.Address = address
	}
}

// BuildListOptions 在默认值之上应用选项。
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.Normalize()
	return options
}

// Normalize 修正非法取值并补齐默认值。
func (opts *ListOptions) Normalize() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}
	opts.Chain = strings.TrimSpace(opts.Chain)
	opts.Address = strings.TrimSpace(opts.Address)

	statuses := opts.Statuses[:0:0]
	for _, status := range opts.Statuses {
		if IsValidStatus(status) && !containsStatus(statuses, status) {
			statuses = append(statuses, status)
		}
	}
	opts.Statuses = nil
	if len(statuses) > 0 {
		opts.Statuses = statuses
	}

	ops := opts.Operations[:0:0]
	for _, op := range opts.Operations {
		if IsValidOperation(op) && !containsOperation(ops, op) {
			ops = append(ops, op)
		}
	}
	opts.Operations = nil
	if len(ops) > 0 {
		opts.Operations = ops
	}
}

// Matches 判断记录是否满足过滤条件。
func (opts ListOptions) Matches(entry *Entry) bool {
	if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, entry.Status) {
		return false
	}
	if len(opts.Operations) > 0 && !containsOperation(opts.Operations, entry.Operation) {
		return false
	}
	if opts.Chain != "" && entry.Chain != opts.Chain {
		return false
	}
	if opts.Address != "" && !strings.EqualFold(entry.Address, opts.Address) {
		return false
	}
	return true
}

func containsStatus(list []Status, status Status) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func containsOperation(list []Operation, op Operation) bool {
	for _, o := range list {
		if o == op {
			return true
		}
	}
	return false
}
