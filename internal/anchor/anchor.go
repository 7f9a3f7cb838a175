// Package anchor 实现分层锚点派生：主锚点由口令和盐经 PBKDF2 派生，
// 各业务域（数据集、模型、训练、部署、推理）的锚点再由主锚点经
// HKDF 标签派生，保证域间分离。所有函数无状态，可并发调用。
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
)

// Domain 表示锚点所属的业务域。
type Domain string

const (
	DomainDataset    Domain = "dataset"
	DomainModel      Domain = "model"
	DomainTrain      Domain = "train"
	DomainDeployment Domain = "deployment"
	DomainInference  Domain = "inference"
)

const (
	// AnchorLen 是所有锚点的固定字节长度。
	AnchorLen = 32
	// masterIterations 是主锚点 PBKDF2 的迭代次数。
	// 一旦有数据落盘就不能再改，改动会使历史锚点无法复现。
	masterIterations = 100000
	// labelPrefix 是 HKDF info 标签的版本化前缀。
	labelPrefix = "anchortrail/v1/"
)

var domains = map[Domain]struct{}{
	DomainDataset:    {},
	DomainModel:      {},
	DomainTrain:      {},
	DomainDeployment: {},
	DomainInference:  {},
}

// ValidDomain 判断域标签是否在允许的集合内。
func ValidDomain(d Domain) bool {
	_, ok := domains[d]
	return ok
}

// Deriver 按策略派生锚点。零值不可用，必须经 NewDeriver 构造。
type Deriver struct {
	saltLength int
}

// NewDeriver 根据策略构造派生器。
func NewDeriver(policy config.Policy) (*Deriver, error) {
	if err := policy.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	return &Deriver{saltLength: policy.SaltLength}, nil
}

// DeriveMaster 由口令和策略固定长度的盐派生 32 字节主锚点。
// 相同输入永远得到相同输出；空口令和错误的盐长度都会被拒绝。
func (d *Deriver) DeriveMaster(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, xerrors.New(xerrors.CodeDerivation, "口令不能为空")
	}
	if len(salt) != d.saltLength {
		return nil, xerrors.New(xerrors.CodeDerivation,
			fmt.Sprintf("盐长度必须为 %d 字节，实际 %d 字节", d.saltLength, len(salt)))
	}
	return pbkdf2.Key([]byte(password), salt, masterIterations, AnchorLen, sha256.New), nil
}

// DeriveDomain 由主锚点、域标签和内容哈希派生域锚点，
// 返回 64 字符小写十六进制。HKDF 的 info 标签带域名，
// 同一主锚点、同一内容哈希在不同域下必然得到不同锚点。
func (d *Deriver) DeriveDomain(master []byte, domain Domain, contentHash string) (string, error) {
	if len(master) != AnchorLen {
		return "", xerrors.New(xerrors.CodeDerivation,
			fmt.Sprintf("主锚点长度必须为 %d 字节，实际 %d 字节", AnchorLen, len(master)))
	}
	if !ValidDomain(domain) {
		return "", xerrors.New(xerrors.CodeDerivation, "未知的业务域",
			xerrors.WithMetadata("domain", string(domain)))
	}
	if contentHash == "" {
		return "", xerrors.New(xerrors.CodeDerivation, "内容哈希不能为空",
			xerrors.WithMetadata("domain", string(domain)))
	}

	info := []byte(labelPrefix + string(domain) + "/" + contentHash)
	out := make([]byte, AnchorLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), out); err != nil {
		return "", xerrors.Wrap(xerrors.CodeDerivation, err, "HKDF 派生失败",
			xerrors.WithMetadata("domain", string(domain)))
	}
	return hex.EncodeToString(out), nil
}
