// Package commitment 产出隐私保护承诺：在不暴露原始数据的前提下
// 绑定数据内容。plaintext 仅用于明确非敏感的数据。
package commitment

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
)

// Type 表示承诺类型。
type Type string

const (
	TypePlaintext Type = "plaintext"
	TypeSalted    Type = "salted"
	TypeHMAC      Type = "hmac"
)

// truncatedHexLen 是 salted/hmac 承诺值暴露的十六进制长度（128 位）。
const truncatedHexLen = 32

// Commitment 是 (类型, 值, 元数据) 三元组。每次调用重新计算，
// 除非盐或密钥另行托管，否则不可作为原始数据的唯一审计记录。
type Commitment struct {
	Type     Type              `json:"type"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Engine 按策略生成承诺。
type Engine struct {
	saltLength  int
	defaultType Type
}

// NewEngine 根据策略构造承诺引擎。
func NewEngine(policy config.Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	return &Engine{
		saltLength:  policy.SaltLength,
		defaultType: Type(policy.DefaultCommitment),
	}, nil
}

// DefaultType 返回策略规定的默认承诺类型。
func (e *Engine) DefaultType() Type {
	return e.defaultType
}

// Commit 对数据生成指定类型的承诺。
// salted 每次调用抽取新盐并在计算后丢弃，承诺因此是单向的；
// 验证方需要在带外重新提供明文和盐。hmac 类型必须改用 CommitHMAC。
func (e *Engine) Commit(data any, typ Type) (Commitment, error) {
	encoded, err := canonical.Marshal(data)
	if err != nil {
		return Commitment{}, err
	}

	switch typ {
	case TypePlaintext:
		return Commitment{Type: TypePlaintext, Value: string(encoded)}, nil

	case TypeSalted:
		salt := make([]byte, e.saltLength)
		if _, err := rand.Read(salt); err != nil {
			return Commitment{}, xerrors.Wrap(xerrors.CodeUnknown, err, "读取随机盐失败")
		}
		h := sha256.New()
		h.Write(salt)
		h.Write(encoded)
		value := hex.EncodeToString(h.Sum(nil))[:truncatedHexLen]
		return Commitment{
			Type:  TypeSalted,
			Value: value,
			Metadata: map[string]string{
				"algorithm": "sha256",
				"salt_len":  strconv.Itoa(e.saltLength),
			},
		}, nil

	case TypeHMAC:
		return Commitment{}, xerrors.New(xerrors.CodeInvalidArgument,
			"hmac 承诺需要密钥，请使用 CommitHMAC")

	default:
		return Commitment{}, xerrors.New(xerrors.CodeUnsupportedCommitment, "",
			xerrors.WithMetadata("type", string(typ)))
	}
}

// CommitHMAC 生成密钥化承诺，仅持有同一密钥（通常为域锚点）的一方可复现。
func (e *Engine) CommitHMAC(data any, key []byte) (Commitment, error) {
	if len(key) == 0 {
		return Commitment{}, xerrors.New(xerrors.CodeInvalidArgument, "hmac 密钥不能为空")
	}
	encoded, err := canonical.Marshal(data)
	if err != nil {
		return Commitment{}, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(encoded)
	value := hex.EncodeToString(mac.Sum(nil))[:truncatedHexLen]
	return Commitment{
		Type:  TypeHMAC,
		Value: value,
		Metadata: map[string]string{
			"algorithm": "hmac-sha256",
		},
	}, nil
}

// VerifyHMAC 用同一密钥重算并比较 hmac 承诺。
func (e *Engine) VerifyHMAC(data any, key []byte, expected Commitment) (bool, error) {
	if expected.Type != TypeHMAC {
		return false, xerrors.New(xerrors.CodeUnsupportedCommitment, "只能验证 hmac 承诺",
			xerrors.WithMetadata("type", string(expected.Type)))
	}
	recomputed, err := e.CommitHMAC(data, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(recomputed.Value), []byte(expected.Value)), nil
}
