package keys

import (
	"encoding/hex"
	"testing"

	"AnchorTrail/internal/canonical"
	xerrors "AnchorTrail/internal/errors"
)

func testDigest(s string) []byte {
	digest, _ := hex.DecodeString(canonical.HashString(s))
	return digest
}

func TestProvisionAndGetSigningKey(t *testing.T) {
	m := NewManager()

	if _, err := m.GetSigningKey(); xerrors.CodeOf(err) != xerrors.CodeKeyNotFound {
		t.Fatalf("empty manager must report KEY_NOT_FOUND, got %v", err)
	}

	bundle, err := m.Provision("signing-2026")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if bundle.Status != StatusActive {
		t.Fatalf("provisioned key must be active, got %s", bundle.Status)
	}
	if len(bundle.PublicKey) == 0 {
		t.Fatal("bundle must expose public key material")
	}

	current, err := m.GetSigningKey()
	if err != nil {
		t.Fatalf("get signing key: %v", err)
	}
	if current.KeyID != "signing-2026" {
		t.Fatalf("unexpected signing key: %s", current.KeyID)
	}

	if _, err := m.Provision("signing-2026"); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("duplicate provision must conflict, got %v", err)
	}
}

func TestRotateLifecycle(t *testing.T) {
	m := NewManager()
	signer := NewSigner(m)
	digest := testDigest("rolling-root")

	old, err := m.Provision("k1")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	// 轮换前用旧密钥签名。
	oldSig, err := signer.Sign(old.KeyID, digest)
	if err != nil {
		t.Fatalf("sign with active key: %v", err)
	}

	fresh, err := m.Rotate("k1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fresh.KeyID == "k1" {
		t.Fatal("rotation must mint a new key id")
	}
	if fresh.Status != StatusActive {
		t.Fatalf("successor must be active, got %s", fresh.Status)
	}

	current, err := m.GetSigningKey()
	if err != nil {
		t.Fatalf("get signing key: %v", err)
	}
	if current.KeyID != fresh.KeyID {
		t.Fatalf("signing key not advanced: %s", current.KeyID)
	}

	retired, err := m.Get("k1")
	if err != nil {
		t.Fatalf("get retired: %v", err)
	}
	if retired.Status != StatusRetired || retired.RetiredAt == nil {
		t.Fatalf("old key not retired: %+v", retired)
	}
	if retired.SuccessorID != fresh.KeyID {
		t.Fatalf("successor link missing: %+v", retired)
	}

	// 退役密钥拒绝新的签名。
	if _, err := signer.Sign("k1", digest); xerrors.CodeOf(err) != xerrors.CodeKeyNotActive {
		t.Fatalf("retired key accepted a signing operation: %v", err)
	}

	// 轮换前的签名依然可以用退役密钥的材料验证。
	ok, err := signer.Verify("k1", digest, oldSig)
	if err != nil {
		t.Fatalf("verify historical signature: %v", err)
	}
	if !ok {
		t.Fatal("historical signature no longer verifies")
	}

	if _, err := m.Rotate("k1"); xerrors.CodeOf(err) != xerrors.CodeKeyNotActive {
		t.Fatalf("rotating a retired key must fail, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	m := NewManager()
	signer := NewSigner(m)
	digest := testDigest("x")

	bundle, err := m.Provision("")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	sig, err := signer.Sign(bundle.KeyID, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := m.Revoke(bundle.KeyID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err := m.Get(bundle.KeyID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompromised {
		t.Fatalf("expected compromised, got %s", got.Status)
	}

	if _, err := m.GetSigningKey(); err == nil {
		t.Fatal("revoked current key must leave no signing key")
	}
	if _, err := signer.Sign(bundle.KeyID, digest); xerrors.CodeOf(err) != xerrors.CodeKeyNotActive {
		t.Fatalf("compromised key accepted a signing operation: %v", err)
	}

	// 验证不受状态影响。
	ok, err := signer.Verify(bundle.KeyID, digest, sig)
	if err != nil || !ok {
		t.Fatalf("verification must be status independent: ok=%v err=%v", ok, err)
	}

	if err := m.Revoke("missing"); xerrors.CodeOf(err) != xerrors.CodeKeyNotFound {
		t.Fatalf("expected KEY_NOT_FOUND, got %v", err)
	}
}

func TestSignRejectsTamperedDigest(t *testing.T) {
	m := NewManager()
	signer := NewSigner(m)
	bundle, err := m.Provision("")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	digest := testDigest("root-a")
	sig, err := signer.Sign(bundle.KeyID, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := testDigest("root-b")
	ok, err := signer.Verify(bundle.KeyID, other, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("signature verified against a different digest")
	}

	if _, err := signer.Sign(bundle.KeyID, []byte("short")); err == nil {
		t.Fatal("non-32-byte digest accepted")
	}
}

func TestSignHexRoundTrip(t *testing.T) {
	m := NewManager()
	signer := NewSigner(m)
	bundle, err := m.Provision("")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	root := canonical.HashString("some-root")
	sig, err := signer.SignHex(bundle.KeyID, root)
	if err != nil {
		t.Fatalf("sign hex: %v", err)
	}
	ok, err := signer.VerifyHex(bundle.KeyID, root, sig)
	if err != nil || !ok {
		t.Fatalf("verify hex: ok=%v err=%v", ok, err)
	}
}
