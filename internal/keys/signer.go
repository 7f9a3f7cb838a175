package keys

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	xerrors "AnchorTrail/internal/errors"
)

// DigestLen 是待签名摘要的固定字节长度。
const DigestLen = 32

// Signer 用管理器中的密钥做 secp256k1 签名。
// 签名只接受 active 密钥；验证与密钥状态无关，退役或已泄露的
// 密钥材料仍可用于验证历史签名。
type Signer struct {
	manager *Manager
}

// NewSigner 构造 Signer。
func NewSigner(manager *Manager) *Signer {
	return &Signer{manager: manager}
}

// Sign 用指定密钥对 32 字节摘要签名，返回 65 字节的 [R || S || V]。
func (s *Signer) Sign(keyID string, digest []byte) ([]byte, error) {
	if len(digest) != DigestLen {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "摘要必须为 32 字节")
	}
	entry, err := s.manager.privateKey(keyID)
	if err != nil {
		return nil, err
	}
	if entry.bundle.Status != StatusActive {
		return nil, xerrors.New(xerrors.CodeKeyNotActive, "",
			xerrors.WithMetadata("key_id", keyID),
			xerrors.WithMetadata("status", string(entry.bundle.Status)))
	}
	sig, err := ethcrypto.Sign(digest, entry.private)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "签名失败",
			xerrors.WithMetadata("key_id", keyID))
	}
	return sig, nil
}

// SignHex 对十六进制摘要（例如滚动根）签名。
func (s *Signer) SignHex(keyID string, hexDigest string) ([]byte, error) {
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "摘要不是合法的十六进制")
	}
	return s.Sign(keyID, digest)
}

// Verify 校验签名。与密钥状态无关。
func (s *Signer) Verify(keyID string, digest []byte, sig []byte) (bool, error) {
	if len(digest) != DigestLen {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "摘要必须为 32 字节")
	}
	if len(sig) < 64 {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "签名长度不足")
	}
	bundle, err := s.manager.Get(keyID)
	if err != nil {
		return false, err
	}
	// VerifySignature 只接受 64 字节的 [R || S]。
	return ethcrypto.VerifySignature(bundle.PublicKey, digest, sig[:64]), nil
}

// VerifyHex 校验对十六进制摘要的签名。
func (s *Signer) VerifyHex(keyID string, hexDigest string, sig []byte) (bool, error) {
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "摘要不是合法的十六进制")
	}
	return s.Verify(keyID, digest, sig)
}
