package commitment

import (
	"testing"

	"AnchorTrail/internal/config"
	xerrors "AnchorTrail/internal/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.DefaultPolicy())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestPlaintextCommitmentExposesCanonicalForm(t *testing.T) {
	e := newTestEngine(t)
	c, err := e.Commit(map[string]int{"b": 1, "a": 2}, TypePlaintext)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if c.Value != `{"a":2,"b":1}` {
		t.Fatalf("unexpected plaintext value: %s", c.Value)
	}
	if c.Type != TypePlaintext {
		t.Fatalf("unexpected type: %s", c.Type)
	}
}

func TestSaltedCommitmentIsOneWay(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Commit("patient-record-7", TypeSalted)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, err := e.Commit("patient-record-7", TypeSalted)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	// 新盐意味着同一数据两次承诺值不同。
	if first.Value == second.Value {
		t.Fatal("salted commitments must differ across calls")
	}
	if len(first.Value) != 32 {
		t.Fatalf("salted value must be 32 hex chars, got %d", len(first.Value))
	}
	if first.Metadata["salt_len"] != "16" {
		t.Fatalf("missing salt_len metadata: %+v", first.Metadata)
	}
	if first.Value == `"patient-record-7"` {
		t.Fatal("salted commitment leaked the plaintext")
	}
}

func TestSaltedCommitmentsDoNotShareMetadata(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Commit("x", TypeSalted)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, err := e.Commit("x", TypeSalted)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	first.Metadata["mutated"] = "yes"
	if _, ok := second.Metadata["mutated"]; ok {
		t.Fatal("metadata map aliased across commitments")
	}
}

func TestHMACCommitmentReproducibleWithKey(t *testing.T) {
	e := newTestEngine(t)
	key := []byte("0123456789abcdef0123456789abcdef")

	first, err := e.CommitHMAC(map[string]string{"model": "m1"}, key)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, err := e.CommitHMAC(map[string]string{"model": "m1"}, key)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if first.Value != second.Value {
		t.Fatal("hmac commitment must be reproducible with the same key")
	}

	ok, err := e.VerifyHMAC(map[string]string{"model": "m1"}, key, first)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("verification with the original key failed")
	}

	ok, err = e.VerifyHMAC(map[string]string{"model": "m2"}, key, first)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("verification accepted different data")
	}

	other, err := e.CommitHMAC(map[string]string{"model": "m1"}, []byte("another-key-entirely-0000000000"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if other.Value == first.Value {
		t.Fatal("different keys produced the same commitment")
	}
}

func TestUnsupportedCommitmentType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Commit("x", Type("rot13"))
	if xerrors.CodeOf(err) != xerrors.CodeUnsupportedCommitment {
		t.Fatalf("expected UNSUPPORTED_COMMITMENT, got %v", err)
	}
}

func TestHMACRequiresKey(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Commit("x", TypeHMAC); err == nil {
		t.Fatal("Commit with hmac type must direct callers to CommitHMAC")
	}
	if _, err := e.CommitHMAC("x", nil); err == nil {
		t.Fatal("empty key must be rejected")
	}
}
