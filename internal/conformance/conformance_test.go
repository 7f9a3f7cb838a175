package conformance

import (
	"encoding/hex"
	"testing"

	"AnchorTrail/internal/anchor"
	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/config"
	"AnchorTrail/internal/merkle"
)

func TestMasterAnchorVector(t *testing.T) {
	suite := Vectors()
	deriver, err := anchor.NewDeriver(config.DefaultPolicy())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}

	master, err := deriver.DeriveMaster(suite.Password, suite.Salt)
	if err != nil {
		t.Fatalf("derive master: %v", err)
	}
	if got := hex.EncodeToString(master); got != suite.MasterAnchorHex {
		t.Fatalf("master anchor mismatch:\n got %s\nwant %s", got, suite.MasterAnchorHex)
	}
}

func TestDomainAnchorVectors(t *testing.T) {
	suite := Vectors()
	deriver, err := anchor.NewDeriver(config.DefaultPolicy())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}
	master, err := deriver.DeriveMaster(suite.Password, suite.Salt)
	if err != nil {
		t.Fatalf("derive master: %v", err)
	}

	contentHash, err := canonical.Hash(suite.ContentInput)
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	if contentHash != suite.ContentHashHex {
		t.Fatalf("content hash mismatch:\n got %s\nwant %s", contentHash, suite.ContentHashHex)
	}

	for domain, want := range suite.DomainAnchors {
		got, err := deriver.DeriveDomain(master, anchor.Domain(domain), contentHash)
		if err != nil {
			t.Fatalf("derive %s anchor: %v", domain, err)
		}
		if got != want {
			t.Fatalf("%s anchor mismatch:\n got %s\nwant %s", domain, got, want)
		}
	}
}

func TestCanonicalVector(t *testing.T) {
	suite := Vectors()

	form, err := canonical.Marshal(map[string]int{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(form) != suite.CanonicalForm {
		t.Fatalf("canonical form mismatch:\n got %s\nwant %s", form, suite.CanonicalForm)
	}
	if got := canonical.HashBytes(form); got != suite.CanonicalHashHex {
		t.Fatalf("canonical hash mismatch:\n got %s\nwant %s", got, suite.CanonicalHashHex)
	}
}

func TestMerkleVectors(t *testing.T) {
	suite := Vectors()
	policy := config.DefaultPolicy()

	// 叶子本身就是字符串 a、b、c 的规范化哈希。
	for i, input := range []string{"a", "b", "c"} {
		leaf, err := canonical.Hash(input)
		if err != nil {
			t.Fatalf("leaf hash: %v", err)
		}
		if leaf != suite.MerkleLeaves[i] {
			t.Fatalf("leaf %d mismatch:\n got %s\nwant %s", i, leaf, suite.MerkleLeaves[i])
		}
	}

	root, err := merkle.Build(suite.MerkleLeaves, policy)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if root != suite.MerkleRootHex {
		t.Fatalf("root mismatch:\n got %s\nwant %s", root, suite.MerkleRootHex)
	}
	if got := merkle.EmptyRoot(); got != suite.EmptyRootHex {
		t.Fatalf("empty root mismatch:\n got %s\nwant %s", got, suite.EmptyRootHex)
	}
}

func TestConnectionsDigestVectors(t *testing.T) {
	suite := Vectors()

	prior := suite.GenesisDigest
	for i, id := range suite.ReceiptIDs {
		own, err := canonical.Hash(id)
		if err != nil {
			t.Fatalf("own digest: %v", err)
		}
		if own != suite.OwnDigests[i] {
			t.Fatalf("own digest %d mismatch:\n got %s\nwant %s", i, own, suite.OwnDigests[i])
		}
		conn := canonical.HashString(prior + own)
		if conn != suite.ConnectionsDigests[i] {
			t.Fatalf("connections digest %d mismatch:\n got %s\nwant %s", i, conn, suite.ConnectionsDigests[i])
		}
		prior = conn
	}
}
