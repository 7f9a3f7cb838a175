// Package worm 实现只追加（write-once-read-many）的持久审计日志。
// 每条记录把负载哈希折叠进滚动 Merkle 根，记录一旦写入既不能修改
// 也不能删除；公开接口上不存在任何 update/delete 操作。
package worm

import (
	"context"
)

// Record 是落盘的一行：序列号严格递增且无空洞，previous_root 是
// 追加前的滚动根，root 是折叠本记录之后的新根。schema_version
// 内嵌在每条记录里，未来读取方据此识别不兼容格式。
type Record struct {
	Sequence      uint64 `json:"sequence_no"`
	Timestamp     string `json:"timestamp"`
	PayloadHash   string `json:"payload_hash"`
	PrevRoot      string `json:"previous_root"`
	Root          string `json:"root"`
	SchemaVersion string `json:"schema_version"`
}

// Backend 是可插拔的持久层。实现必须保持严格追加顺序，并在进程
// 重启后不丢失已提交的记录（memory 后端仅用于测试）。接口刻意
// 不提供修改或删除能力。
type Backend interface {
	Append(ctx context.Context, record Record) error
	All(ctx context.Context) ([]Record, error)
	Latest(ctx context.Context) (*Record, error)
	Count(ctx context.Context) (uint64, error)
	Close() error
}
