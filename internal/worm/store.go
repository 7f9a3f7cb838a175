package worm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
	"AnchorTrail/internal/merkle"
	"AnchorTrail/pkg/logger"
)

const (
	defaultAppendAttempts = 3
	defaultBackoff        = 50 * time.Millisecond
)

// Store 在 Backend 之上维护滚动 Merkle 根。同一实例的追加由内部
// 互斥锁串行化（每次追加的 previous_root 必须等于真实的前一状态），
// 读取可与追加并发进行，观察到的始终是单调增长的一致前缀。
// 一旦检测到完整性违规，实例被永久拒写，直到外部介入修复。
type Store struct {
	mu       sync.RWMutex
	policy   config.Policy
	backend  Backend
	tree     *merkle.Tree
	lastSeq  uint64
	poisoned error
	attempts int
	backoff  time.Duration
	audit    *slog.Logger
}

// NewStore 打开存储：回放后端中已有的记录重建滚动根，并校验链的
// 连续性。任何断裂都会使构造失败。
func NewStore(ctx context.Context, policy config.Policy, backend Backend) (*Store, error) {
	if err := policy.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "WORM 后端不能为空")
	}
	tree, err := merkle.NewTree(policy)
	if err != nil {
		return nil, err
	}
	s := &Store{
		policy:   policy,
		backend:  backend,
		tree:     tree,
		attempts: defaultAppendAttempts,
		backoff:  defaultBackoff,
		audit:    logger.Audit(),
	}

	records, err := backend.All(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 WORM 后端失败")
	}
	for _, record := range records {
		if err := s.replay(record); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// replay 把一条已持久化的记录折叠进树，同时校验序列号与根链。
func (s *Store) replay(record Record) error {
	if record.SchemaVersion != s.policy.SchemaVersion {
		return xerrors.New(xerrors.CodeStorageFailure,
			fmt.Sprintf("记录模式版本不兼容: %q, 期望 %q", record.SchemaVersion, s.policy.SchemaVersion),
			xerrors.WithMetadata("sequence", fmt.Sprint(record.Sequence)))
	}
	if record.Sequence != s.lastSeq+1 {
		return s.poison(record.Sequence,
			fmt.Sprintf("序列号出现空洞: 期望 %d, 实际 %d", s.lastSeq+1, record.Sequence))
	}
	if record.PrevRoot != s.tree.Root() {
		return s.poison(record.Sequence, "previous_root 与滚动根不一致")
	}
	newRoot, err := s.tree.Append(record.PayloadHash)
	if err != nil {
		return err
	}
	if record.Root != newRoot {
		return s.poison(record.Sequence, "记录的根与重算结果不一致")
	}
	s.lastSeq = record.Sequence
	return nil
}

// poison 将实例标记为不可信并返回完整性违规错误。
func (s *Store) poison(sequence uint64, message string) error {
	err := xerrors.New(xerrors.CodeWORMIntegrity, message,
		xerrors.WithMetadata("sequence", fmt.Sprint(sequence)))
	s.poisoned = err
	s.audit.Error("WORM 完整性违规，存储已拒写",
		slog.Uint64("sequence", sequence),
		slog.String("reason", message))
	return err
}

// Append 追加一条记录并返回其序列号。
// 要么完整成功，要么完全失败：持久化失败不会推进滚动根。
func (s *Store) Append(ctx context.Context, payload any) (uint64, error) {
	payloadHash, err := canonical.Hash(payload)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return 0, xerrors.Wrap(xerrors.CodeWORMIntegrity, s.poisoned, "存储已被标记为不可信，拒绝追加")
	}

	prevRoot := s.tree.Root()
	newRoot, err := s.tree.PreviewRoot(payloadHash)
	if err != nil {
		return 0, err
	}
	record := Record{
		Sequence:      s.lastSeq + 1,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		PayloadHash:   payloadHash,
		PrevRoot:      prevRoot,
		Root:          newRoot,
		SchemaVersion: s.policy.SchemaVersion,
	}

	if err := s.persist(ctx, record); err != nil {
		return 0, err
	}

	if _, err := s.tree.Append(payloadHash); err != nil {
		// PreviewRoot 已校验过叶子，这里不应失败。
		return 0, s.poison(record.Sequence, "滚动根推进失败: "+err.Error())
	}
	s.lastSeq = record.Sequence

	s.audit.Info("WORM 追加",
		slog.Uint64("sequence", record.Sequence),
		slog.String("payload_hash", record.PayloadHash),
		slog.String("root", record.Root))
	return record.Sequence, nil
}

// persist 带有界重试地写入后端，仅对可重试错误退避重试。
func (s *Store) persist(ctx context.Context, record Record) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.backend.Append(ctx, record)
		if lastErr == nil {
			return nil
		}
		if xerrors.CodeOf(lastErr) == xerrors.CodeWORMIntegrity {
			return s.poison(record.Sequence, lastErr.Error())
		}
		if !xerrors.RetryableError(lastErr) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, lastErr, "WORM 持久化失败",
				xerrors.WithMetadata("sequence", fmt.Sprint(record.Sequence)))
		}
		if attempt < s.attempts {
			select {
			case <-ctx.Done():
				return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "WORM 持久化被取消")
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
	}
	return xerrors.Wrap(xerrors.CodeRetriesExhausted, lastErr, "WORM 持久化重试耗尽",
		xerrors.WithMetadata("sequence", fmt.Sprint(record.Sequence)))
}

// Latest 返回最新记录，空存储返回 nil。
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Latest(ctx)
}

// All 按序列号升序返回全部记录。
func (s *Store) All(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.All(ctx)
}

// Root 返回当前滚动根。
func (s *Store) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Root()
}

// Size 返回已追加的记录数。
func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// Proof 为序列号 sequence（从 1 开始）的记录生成包含性证明。
func (s *Store) Proof(sequence uint64) ([]merkle.ProofStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sequence == 0 || sequence > s.lastSeq {
		return nil, xerrors.New(xerrors.CodeNotFound,
			fmt.Sprintf("序列号不存在: %d", sequence))
	}
	return s.tree.Proof(int(sequence - 1))
}

// VerifyIntegrity 从后端完整回放并校验根链。发现违规即标记拒写。
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return s.poisoned
	}

	records, err := s.backend.All(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 WORM 后端失败")
	}

	replayTree, err := merkle.NewTree(s.policy)
	if err != nil {
		return err
	}
	var lastSeq uint64
	for _, record := range records {
		if record.Sequence != lastSeq+1 {
			return s.poison(record.Sequence,
				fmt.Sprintf("序列号出现空洞: 期望 %d, 实际 %d", lastSeq+1, record.Sequence))
		}
		if record.PrevRoot != replayTree.Root() {
			return s.poison(record.Sequence, "previous_root 与回放结果不一致")
		}
		newRoot, err := replayTree.Append(record.PayloadHash)
		if err != nil {
			return err
		}
		if record.Root != newRoot {
			return s.poison(record.Sequence, "记录的根与回放结果不一致")
		}
		lastSeq = record.Sequence
	}
	if lastSeq != s.lastSeq || replayTree.Root() != s.tree.Root() {
		return s.poison(lastSeq, "后端记录与内存状态不一致")
	}
	return nil
}

// Close 关闭底层后端。
func (s *Store) Close() error {
	return s.backend.Close()
}
