// Package merkle 在叶子哈希序列上构建 Merkle 树：计算根、生成并验证
// 包含性证明。Build/Proof/Verify 是纯函数，可并发调用；根是
// (有序叶子序列, 策略) 的纯函数，叶子顺序敏感，重排会改变根。
// 已算出的根或摘要可以再次作为叶子输入，用于组合会话根、发布根
// 和批次根（"根之根"）。
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
)

// HashHexLen 是叶子与根的十六进制长度（SHA-256）。
const HashHexLen = 64

// ProofStep 是包含性证明中的一步：兄弟哈希及其相对位置。
type ProofStep struct {
	Sibling string `json:"sibling"`
	Right   bool   `json:"right"`
}

// EmptyRoot 返回空叶子集的哨兵根。它不是错误，也不是合法的包含性目标。
func EmptyRoot() string {
	return combine("", "")
}

// combine 对两个十六进制串的 ASCII 拼接做 SHA-256。
func combine(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

func validatePolicy(policy config.Policy) error {
	if err := policy.Validate(); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "策略非法")
	}
	return nil
}

func validateLeaf(leaf string) error {
	if len(leaf) != HashHexLen {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("叶子必须为 %d 位十六进制哈希，实际长度 %d", HashHexLen, len(leaf)))
	}
	if _, err := hex.DecodeString(leaf); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "叶子不是合法的十六进制")
	}
	return nil
}

// Build 自底向上成对合并，奇数节点按 duplicate-last 规则与自身配对。
func Build(leaves []string, policy config.Policy) (string, error) {
	if err := validatePolicy(policy); err != nil {
		return "", err
	}
	if len(leaves) == 0 {
		return EmptyRoot(), nil
	}
	for _, leaf := range leaves {
		if err := validateLeaf(leaf); err != nil {
			return "", err
		}
	}

	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, combine(left, right))
		}
		level = next
	}
	return level[0], nil
}

// Proof 为下标 index 处的叶子生成兄弟路径。
func Proof(leaves []string, policy config.Policy, index int) ([]ProofStep, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(leaves) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("叶子下标越界: %d / %d", index, len(leaves)))
	}
	for _, leaf := range leaves {
		if err := validateLeaf(leaf); err != nil {
			return nil, err
		}
	}

	var steps []ProofStep
	level := make([]string, len(leaves))
	copy(level, leaves)
	pos := index
	for len(level) > 1 {
		var sibling string
		right := pos%2 == 0
		if right {
			// 兄弟在右侧；末尾奇数节点与自身配对。
			if pos+1 < len(level) {
				sibling = level[pos+1]
			} else {
				sibling = level[pos]
			}
		} else {
			sibling = level[pos-1]
		}
		steps = append(steps, ProofStep{Sibling: sibling, Right: right})

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			r := left
			if i+1 < len(level) {
				r = level[i+1]
			}
			next = append(next, combine(left, r))
		}
		level = next
		pos /= 2
	}
	return steps, nil
}

// Verify 将叶子沿证明路径折叠并与期望根做字节比较。
// 不访问任何网络或存储。
func Verify(leaf string, proof []ProofStep, root string, policy config.Policy) bool {
	if policy.Validate() != nil || validateLeaf(leaf) != nil {
		return false
	}
	cur := leaf
	for _, step := range proof {
		if validateLeaf(step.Sibling) != nil {
			return false
		}
		if step.Right {
			cur = combine(cur, step.Sibling)
		} else {
			cur = combine(step.Sibling, cur)
		}
	}
	return cur == root
}

// VerifyOrError 与 Verify 相同，但失败时返回定位信息完整的错误。
func VerifyOrError(leaf string, proof []ProofStep, root string, policy config.Policy) error {
	if Verify(leaf, proof, root, policy) {
		return nil
	}
	return xerrors.New(xerrors.CodeMerkleVerification, "",
		xerrors.WithMetadata("leaf", leaf),
		xerrors.WithMetadata("root", root))
}
