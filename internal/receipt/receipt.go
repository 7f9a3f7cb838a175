// Package receipt 实现审计回执链：每条回执通过 connections digest
// 与前驱哈希链接，篡改任何一条回执的内容或其记录的前驱摘要都会在
// 回放校验时暴露。一条链对应一个逻辑会话，多条链可并发推进。
package receipt

import (
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/commitment"
	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
	"AnchorTrail/pkg/logger"
)

// GenesisDigest 是链上第一条回执的前驱摘要哨兵。
const GenesisDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// Receipt 是一条审计回执。
type Receipt struct {
	ID                 string                `json:"id"`
	Refs               []string              `json:"refs"`
	InputCommitment    commitment.Commitment `json:"input_commitment"`
	OutputCommitment   commitment.Commitment `json:"output_commitment"`
	ExplanationDigests []string              `json:"explanation_digests,omitempty"`
	Timestamp          string                `json:"timestamp"`
	OwnDigest          string                `json:"own_digest"`
	PriorDigest        string                `json:"prior_digest"`
	ConnectionsDigest  string                `json:"connections_digest"`
}

// Chain 是单个会话的回执序列。写入由内部互斥锁串行化。
type Chain struct {
	mu       sync.Mutex
	engine   *commitment.Engine
	defType  commitment.Type
	receipts []*Receipt
	current  string
	audit    *slog.Logger
}

// NewChain 构造空链。承诺类型取策略的默认值。
func NewChain(policy config.Policy, engine *commitment.Engine) (*Chain, error) {
	if err := policy.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	if engine == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "承诺引擎不能为空")
	}
	return &Chain{
		engine:  engine,
		defType: commitment.Type(policy.DefaultCommitment),
		current: GenesisDigest,
		audit:   logger.Audit(),
	}, nil
}

// AddOption 定义 Add 的可选参数。
type AddOption func(*addOptions)

type addOptions struct {
	explanations []string
}

// WithExplanations 附加解释摘要（十六进制）到回执上。
func WithExplanations(digests ...string) AddOption {
	return func(o *addOptions) {
		o.explanations = append(o.explanations, digests...)
	}
}

// Add 生成一条新回执并链接到当前链尾。id 为空时自动分配 uuid。
func (c *Chain) Add(id string, refs []string, inputData, outputData any, opts ...AddOption) (*Receipt, error) {
	var options addOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	for _, digest := range options.explanations {
		if _, err := hex.DecodeString(digest); err != nil || digest != strings.ToLower(digest) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "解释摘要必须为小写十六进制",
				xerrors.WithMetadata("digest", digest))
		}
	}

	if id == "" {
		id = uuid.NewString()
	}

	input, err := c.engine.Commit(inputData, c.defType)
	if err != nil {
		return nil, err
	}
	output, err := c.engine.Commit(outputData, c.defType)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:                 id,
		Refs:               append([]string(nil), refs...),
		InputCommitment:    input,
		OutputCommitment:   output,
		ExplanationDigests: append([]string(nil), options.explanations...),
		Timestamp:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	own, err := ownDigest(receipt)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	receipt.OwnDigest = own
	receipt.PriorDigest = c.current
	receipt.ConnectionsDigest = canonical.HashString(c.current + own)

	c.receipts = append(c.receipts, receipt)
	c.current = receipt.ConnectionsDigest

	c.audit.Info("回执已链接",
		slog.String("receipt_id", receipt.ID),
		slog.String("connections_digest", receipt.ConnectionsDigest))
	return cloneReceipt(receipt), nil
}

// ownDigest 对回执自身内容（不含链接字段）计算摘要。
func ownDigest(r *Receipt) (string, error) {
	return canonical.Hash(map[string]any{
		"id":           r.ID,
		"refs":         r.Refs,
		"input_type":   string(r.InputCommitment.Type),
		"input_value":  r.InputCommitment.Value,
		"output_type":  string(r.OutputCommitment.Type),
		"output_value": r.OutputCommitment.Value,
		"explanations": r.ExplanationDigests,
		"timestamp":    r.Timestamp,
	})
}

// VerifyIntegrity 从创世哨兵完整回放链并校验每一环。
// 返回 false 表示链上存在被篡改的回执。
func (c *Chain) VerifyIntegrity() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior := GenesisDigest
	for _, receipt := range c.receipts {
		own, err := ownDigest(receipt)
		if err != nil {
			return false, err
		}
		if receipt.OwnDigest != own {
			return false, nil
		}
		if receipt.PriorDigest != prior {
			return false, nil
		}
		expected := canonical.HashString(prior + own)
		if receipt.ConnectionsDigest != expected {
			return false, nil
		}
		prior = receipt.ConnectionsDigest
	}
	return prior == c.current, nil
}

// Current 返回链尾的 connections digest；空链返回创世哨兵。
func (c *Chain) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Len 返回链上的回执数。
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receipts)
}

// Receipts 返回全部回执的副本。
func (c *Chain) Receipts() []*Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Receipt, len(c.receipts))
	for i, receipt := range c.receipts {
		out[i] = cloneReceipt(receipt)
	}
	return out
}

// ConnectionDigests 按顺序返回每条回执的 connections digest，
// 供"根之根"组合使用。
func (c *Chain) ConnectionDigests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.receipts))
	for i, receipt := range c.receipts {
		out[i] = receipt.ConnectionsDigest
	}
	return out
}

func cloneReceipt(r *Receipt) *Receipt {
	clone := *r
	clone.Refs = append([]string(nil), r.Refs...)
	clone.ExplanationDigests = append([]string(nil), r.ExplanationDigests...)
	if r.InputCommitment.Metadata != nil {
		clone.InputCommitment.Metadata = cloneMap(r.InputCommitment.Metadata)
	}
	if r.OutputCommitment.Metadata != nil {
		clone.OutputCommitment.Metadata = cloneMap(r.OutputCommitment.Metadata)
	}
	return &clone
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
