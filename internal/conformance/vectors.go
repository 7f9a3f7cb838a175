// Package conformance 暴露固定的测试向量：给定口令、盐、数据输入
// 和期望的摘要输出。其他语言的实现可以据此做逐字节的互验。
// 向量一经发布不得更改，否则历史互验结果全部作废。
package conformance

// Suite 是一组完整的互验向量。
type Suite struct {
	// 主锚点派生：PBKDF2-HMAC-SHA256，100000 次迭代，32 字节输出。
	Password        string
	Salt            []byte
	MasterAnchorHex string

	// 域锚点派生：HKDF-SHA256，info = "anchortrail/v1/<domain>/<content-hash>"。
	ContentInput   string
	ContentHashHex string
	DomainAnchors  map[string]string

	// 规范化：map 键排序后的紧凑 JSON 及其 SHA-256。
	CanonicalForm    string
	CanonicalHashHex string

	// Merkle：叶子为规范化哈希，combine = SHA-256(左十六进制 ∥ 右十六进制)。
	MerkleLeaves  []string
	MerkleRootHex string
	EmptyRootHex  string

	// 回执链：own digest 为回执 ID 的规范化哈希，
	// connections digest = SHA-256(前驱 ∥ own)。
	GenesisDigest      string
	ReceiptIDs         []string
	OwnDigests         []string
	ConnectionsDigests []string
}

// Vectors 返回标准向量组。
func Vectors() Suite {
	return Suite{
		Password:        "pw1",
		Salt:            make([]byte, 16),
		MasterAnchorHex: "f47e8825ff85875002a8cc336bdd806d23b69c5e9ceb12d07ec63872fc84ce4e",

		ContentInput:   "abc123",
		ContentHashHex: "3f59069122f3a32d3c09ce5ef4882e49feb7777b539cdc4be0d214fa3332e11e",
		DomainAnchors: map[string]string{
			"dataset": "e9ff0ff54395a2b35634265e8b0753d7ee28a4c79c14877398998312954dbde8",
			"model":   "7260af2a853c51eda5fbb22cd8d42d8e6b87678c2c6d63d9bf75e976d5d89cfd",
		},

		CanonicalForm:    `{"a":2,"b":1}`,
		CanonicalHashHex: "d3626ac30a87e6f7a6428233b3c68299976865fa5508e4267c5415c76af7a772",

		MerkleLeaves: []string{
			"ac8d8342bbb2362d13f0a559a3621bb407011368895164b628a54f7fc33fc43c",
			"c100f95c1913f9c72fc1f4ef0847e1e723ffe0bde0b36e5f36c13f81fe8c26ed",
			"879923da020d1533f4d8e921ea7bac61e8ba41d3c89d17a4d14e3a89c6780d5d",
		},
		MerkleRootHex: "8ca89ad6be8666b54fba83ba378330941511dffc1b102484fe8c4e2b91280a07",
		EmptyRootHex:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",

		GenesisDigest: "0000000000000000000000000000000000000000000000000000000000000000",
		ReceiptIDs:    []string{"r1", "r2", "r3"},
		OwnDigests: []string{
			"aee3d30407ccfb32dbb15266aaf45f0c534ab53070ff6124d195cca995fe4894",
			"609d51837c7fc306b0cbb04a2492281a2ed0e5822fed79b6ee0bab4792e423db",
			"a7fdc4e6e62bd8f54a36b6a09e6d49ad2f83090e8524364984ff597db557e5fa",
		},
		ConnectionsDigests: []string{
			"4c6812a6e3886883dc11d4cddf75b6de28d3226d785da8ca3b00bcfa7551f9dc",
			"d11545b02fab913cc83c219d705702899ecfdf097ab9f826974fb22c7c7d2ea8",
			"5fed22547c4fb35f6c3d620d465f328bf0214f34ea88aec4a0cef5572650a388",
		},
	}
}
