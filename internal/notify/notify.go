// Package notify 把封板事件（新的滚动根）发布到外部渠道。
// Publisher 是显式注入的能力接口：未配置时使用 NoopPublisher，
// 而不是靠运行时探测依赖是否存在。
package notify

import (
	"context"
	"sync"
)

// RootEvent 描述一次成功追加后的封板信息。
type RootEvent struct {
	Sequence    uint64 `json:"sequence_no"`
	PayloadHash string `json:"payload_hash"`
	Root        string `json:"root"`
	Timestamp   string `json:"timestamp"`
}

// Publisher 将封板事件发布到某个渠道。发布失败必须如实上报，
// 由调用方决定如何处置，不允许静默吞掉。
type Publisher interface {
	Publish(ctx context.Context, event RootEvent) error
	Close() error
}

// NoopPublisher 是"未配置"的显式表达。
type NoopPublisher struct{}

// Publish 实现 Publisher 接口。
func (NoopPublisher) Publish(context.Context, RootEvent) error { return nil }

// Close 实现 Publisher 接口。
func (NoopPublisher) Close() error { return nil }

// MemoryPublisher 把事件留在内存里，用于测试。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []RootEvent
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (m *MemoryPublisher) Publish(_ context.Context, event RootEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events 返回已发布事件的副本。
func (m *MemoryPublisher) Events() []RootEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RootEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Close 实现 Publisher 接口。
func (m *MemoryPublisher) Close() error { return nil }
