package merkle

import (
	"AnchorTrail/internal/config"
)

// Tree 是增量式追加结构：每层只保留一个已完成子树的根（frontier），
// 追加摊销 O(log n)，求根在查询时惰性折叠，结果与对全部叶子调用
// Build 得到的根字节一致。Tree 本身不加锁，由持有者保证单写者。
type Tree struct {
	policy  config.Policy
	pending []string
	leaves  []string
}

// NewTree 构造空的增量树。
func NewTree(policy config.Policy) (*Tree, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	return &Tree{policy: policy}, nil
}

// Append 追加一个叶子并返回新的根。
func (t *Tree) Append(leaf string) (string, error) {
	if err := validateLeaf(leaf); err != nil {
		return "", err
	}
	t.pending = appendPending(t.pending, leaf)
	t.leaves = append(t.leaves, leaf)
	return t.Root(), nil
}

// PreviewRoot 返回追加 leaf 之后的根，但不修改树。
// 失败的持久化因此不会污染滚动根。
func (t *Tree) PreviewRoot(leaf string) (string, error) {
	if err := validateLeaf(leaf); err != nil {
		return "", err
	}
	copied := make([]string, len(t.pending))
	copy(copied, t.pending)
	return foldPending(appendPending(copied, leaf)), nil
}

// Root 返回当前根；空树返回哨兵根。
func (t *Tree) Root() string {
	return foldPending(t.pending)
}

// Size 返回已追加的叶子数。
func (t *Tree) Size() int {
	return len(t.leaves)
}

// Leaves 返回叶子序列的副本。
func (t *Tree) Leaves() []string {
	out := make([]string, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Proof 为下标 index 处的叶子生成包含性证明。
func (t *Tree) Proof(index int) ([]ProofStep, error) {
	return Proof(t.leaves, t.policy, index)
}

// appendPending 把新叶子进位合并进 frontier：
// 第 i 层存放一个完整 2^i 子树的根，层已占用则合并后继续向上进位。
func appendPending(pending []string, leaf string) []string {
	carry := leaf
	for i := 0; ; i++ {
		if i == len(pending) {
			pending = append(pending, carry)
			return pending
		}
		if pending[i] == "" {
			pending[i] = carry
			return pending
		}
		carry = combine(pending[i], carry)
		pending[i] = ""
	}
}

// foldPending 自底向上折叠 frontier。低层的游离子树按
// duplicate-last 语义与自身配对抬升，直到与更高层的子树合并，
// 这保证折叠结果与全量重建逐字节一致。
func foldPending(pending []string) string {
	cur := ""
	level := 0
	for lvl, p := range pending {
		if p == "" {
			continue
		}
		if cur == "" {
			cur = p
			level = lvl
			continue
		}
		for level < lvl {
			cur = combine(cur, cur)
			level++
		}
		cur = combine(p, cur)
		level = lvl + 1
	}
	if cur == "" {
		return EmptyRoot()
	}
	return cur
}
