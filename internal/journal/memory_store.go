package journal

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
)

// MemoryStore 以内存方式保存最近的操作记录，超出容量时淘汰最早的记录。
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	entries  map[string]*Entry
}

// NewMemoryStore 创建 MemoryStore，capacity <= 0 时使用 1024。
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]*Entry),
	}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "entry 不能为空")
	}
	if entry.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; ok {
		return ErrEntryConflict
	}
	now := time.Now().Unix()
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt == 0 {
		entry.UpdatedAt = entry.CreatedAt
	}
	m.entries[entry.ID] = cloneEntry(entry)
	m.order = append(m.order, entry.ID)
	for len(m.order) > m.capacity {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Get 返回指定记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

// FindByTxHash 返回广播该交易的 send_transaction 记录。
func (m *MemoryStore) FindByTxHash(_ context.Context, hash string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		entry := m.entries[m.order[i]]
		if entry.Operation == OpSendTransaction && strings.EqualFold(entry.TxHash, hash) {
			return cloneEntry(entry), nil
		}
	}
	return nil, ErrEntryNotFound
}

// UpdateStatus 更新记录状态。
func (m *MemoryStore) UpdateStatus(_ context.Context, id string, update StatusUpdate) error {
	if !IsValidStatus(update.Status) {
		return xerrors.New(xerrors.CodeInvalidArgument, "非法的记录状态: "+string(update.Status))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = update.Status
	entry.Error = update.Error
	if update.BlockNumber > 0 {
		entry.BlockNumber = update.BlockNumber
	}
	if update.Attempts > entry.Attempts {
		entry.Attempts = update.Attempts
	}
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

// List 按写入顺序倒序返回满足条件的记录。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Entry, error) {
	opts.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Entry, 0, opts.Limit)
	for i := len(m.order) - 1; i >= 0 && len(results) < opts.Limit; i-- {
		entry := m.entries[m.order[i]]
		if opts.Matches(entry) {
			results = append(results, cloneEntry(entry))
		}
	}
	return results, nil
}

// Len 返回当前保存的记录数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
