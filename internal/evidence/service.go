// Package evidence 把各密码学组件串成完整的取证流水线：
// 外部工作流先为实体取得域锚点，再对敏感字段生成承诺，把事件
// 封装追加进 WORM 日志，同时向会话回执链写入回执，最后对新的
// 滚动根签名并对外发布封板事件。
package evidence

import (
	"context"
	"log/slog"
	"time"

	"AnchorTrail/internal/anchor"
	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/commitment"
	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
	"AnchorTrail/internal/keys"
	"AnchorTrail/internal/merkle"
	"AnchorTrail/internal/notify"
	"AnchorTrail/internal/receipt"
	"AnchorTrail/internal/worm"
	"AnchorTrail/pkg/logger"
)

// EventRecord 汇总一次取证流水线的全部产物。
type EventRecord struct {
	Anchor      string                `json:"anchor"`
	Domain      string                `json:"domain"`
	ContentHash string                `json:"content_hash"`
	Sequence    uint64                `json:"sequence_no"`
	Root        string                `json:"root"`
	ReceiptID   string                `json:"receipt_id"`
	Commitment  commitment.Commitment `json:"commitment"`
	KeyID       string                `json:"key_id,omitempty"`
	Signature   []byte                `json:"signature,omitempty"`
}

// Service 是取证流水线的内部门面。
type Service struct {
	policy      config.Policy
	deriver     *anchor.Deriver
	commitments *commitment.Engine
	store       *worm.Store
	chain       *receipt.Chain
	manager     *keys.Manager
	signer      *keys.Signer
	publisher   notify.Publisher
	log         *slog.Logger
}

// NewService 构造取证服务。publisher 传 nil 表示未配置外发渠道。
func NewService(
	policy config.Policy,
	deriver *anchor.Deriver,
	commitments *commitment.Engine,
	store *worm.Store,
	chain *receipt.Chain,
	manager *keys.Manager,
	signer *keys.Signer,
	publisher notify.Publisher,
) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	if deriver == nil || commitments == nil || store == nil || chain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "取证服务缺少必要组件")
	}
	if publisher == nil {
		publisher = notify.NoopPublisher{}
	}
	return &Service{
		policy:      policy,
		deriver:     deriver,
		commitments: commitments,
		store:       store,
		chain:       chain,
		manager:     manager,
		signer:      signer,
		publisher:   publisher,
		log:         logger.Named("evidence"),
	}, nil
}

// RecordEvent 执行一次完整的取证流水线。
// 任何一步失败都如实上报；发布失败不会回滚已落盘的记录，
// 但错误会原样返回给调用方。
func (s *Service) RecordEvent(ctx context.Context, domain anchor.Domain, master []byte, entity any, sensitive any) (*EventRecord, error) {
	contentHash, err := canonical.Hash(entity)
	if err != nil {
		return nil, err
	}
	anchorHex, err := s.deriver.DeriveDomain(master, domain, contentHash)
	if err != nil {
		return nil, err
	}

	commit, err := s.commitments.Commit(sensitive, s.commitments.DefaultType())
	if err != nil {
		return nil, err
	}

	envelope := map[string]any{
		"anchor":           anchorHex,
		"domain":           string(domain),
		"content_hash":     contentHash,
		"commitment_type":  string(commit.Type),
		"commitment_value": commit.Value,
	}
	sequence, err := s.store.Append(ctx, envelope)
	if err != nil {
		return nil, err
	}
	root := s.store.Root()

	rcpt, err := s.chain.Add("", []string{anchorHex},
		map[string]any{"content_hash": contentHash},
		map[string]any{"sequence_no": sequence, "root": root})
	if err != nil {
		return nil, err
	}

	record := &EventRecord{
		Anchor:      anchorHex,
		Domain:      string(domain),
		ContentHash: contentHash,
		Sequence:    sequence,
		Root:        root,
		ReceiptID:   rcpt.ID,
		Commitment:  commit,
	}

	if s.manager != nil && s.signer != nil {
		bundle, err := s.manager.GetSigningKey()
		if err != nil {
			return nil, err
		}
		sig, err := s.signer.SignHex(bundle.KeyID, root)
		if err != nil {
			return nil, err
		}
		record.KeyID = bundle.KeyID
		record.Signature = sig
	}

	event := notify.RootEvent{
		Sequence:    sequence,
		PayloadHash: contentHash,
		Root:        root,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布封板事件失败",
			xerrors.WithMetadata("receipt_id", rcpt.ID))
	}

	s.log.Info("取证事件已记录",
		slog.String("domain", string(domain)),
		slog.Uint64("sequence", sequence),
		slog.String("receipt_id", rcpt.ID))
	return record, nil
}

// SessionRoot 把会话内所有回执的 connections digest 与 WORM 滚动根
// 组合成"根之根"。
func (s *Service) SessionRoot() (string, error) {
	leaves := append(s.chain.ConnectionDigests(), s.store.Root())
	return merkle.Build(leaves, s.policy)
}

// VerifyAll 校验 WORM 日志与回执链的完整性。
func (s *Service) VerifyAll(ctx context.Context) error {
	if err := s.store.VerifyIntegrity(ctx); err != nil {
		return err
	}
	ok, err := s.chain.VerifyIntegrity()
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.New(xerrors.CodeWORMIntegrity, "回执链完整性校验失败")
	}
	return nil
}
