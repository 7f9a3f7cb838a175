// Package canonical 提供整个系统共用的确定性序列化与哈希原语。
// 语义相同的输入（键值对相同、构造顺序不同）必须产生字节级一致的输出，
// 任何平台、locale 或迭代顺序都不得影响结果。
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	xerrors "AnchorTrail/internal/errors"
)

// Marshal 输出规范化 JSON：map 键按字典序排序、紧凑分隔符、UTF-8、
// 不做 HTML 转义、结尾无换行。无法序列化的输入（chan、func、NaN、
// 非文本键的 map）是硬错误，不做静默降级。
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCanonicalization, err, "规范化序列化失败")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Hash 返回规范化序列化结果的 SHA-256，小写十六进制，固定 64 字符。
func Hash(v any) (string, error) {
	encoded, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(encoded), nil
}

// HashBytes 对已经序列化好的字节做 SHA-256，小写十六进制。
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString 是 HashBytes 的字符串便捷形式。
func HashString(data string) string {
	return HashBytes([]byte(data))
}
