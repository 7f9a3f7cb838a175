package worm

import (
	"context"
	"fmt"
	"sync"

	xerrors "AnchorTrail/internal/errors"
)

// MemoryBackend 以内存方式保存记录，主要用于测试。
type MemoryBackend struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryBackend 创建 MemoryBackend。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Append 实现 Backend 接口。
func (m *MemoryBackend) Append(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expected := uint64(len(m.records)) + 1
	if record.Sequence != expected {
		return xerrors.New(xerrors.CodeWORMIntegrity,
			fmt.Sprintf("序列号不连续: 期望 %d, 实际 %d", expected, record.Sequence))
	}
	m.records = append(m.records, record)
	return nil
}

// All 按追加顺序返回全部记录的副本。
func (m *MemoryBackend) All(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Latest 返回最新记录，空后端返回 nil。
func (m *MemoryBackend) Latest(_ context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return nil, nil
	}
	record := m.records[len(m.records)-1]
	return &record, nil
}

// Count 返回记录数。
func (m *MemoryBackend) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.records)), nil
}

// Close 实现 Backend 接口。
func (m *MemoryBackend) Close() error { return nil }
