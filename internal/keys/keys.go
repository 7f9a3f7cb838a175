// Package keys 管理签名密钥的生命周期：开通、轮换、吊销。
// 已退役或已泄露的密钥保留用于验证历史签名，但拒绝新的签名操作。
package keys

import (
	"crypto/ecdsa"
	"log/slog"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	xerrors "AnchorTrail/internal/errors"
	"AnchorTrail/pkg/logger"
)

// Status 表示密钥在生命周期中的状态。
type Status string

const (
	StatusActive      Status = "active"
	StatusRetired     Status = "retired"
	StatusCompromised Status = "compromised"
)

// KeyBundle 描述一把密钥及其生命周期元数据。私钥材料不随
// KeyBundle 外泄，签名统一经由 Signer 完成。
type KeyBundle struct {
	KeyID       string     `json:"key_id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	SuccessorID string     `json:"successor_id,omitempty"`
	PublicKey   []byte     `json:"public_key"`
}

type keyEntry struct {
	bundle  KeyBundle
	private *ecdsa.PrivateKey
}

// Manager 维护密钥集合与当前签名密钥。
type Manager struct {
	mu       sync.RWMutex
	entries  map[string]*keyEntry
	activeID string
	audit    *slog.Logger
}

// NewManager 创建空的密钥管理器。
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*keyEntry),
		audit:   logger.Audit(),
	}
}

// Provision 生成一把新的 active 密钥。keyID 为空时自动分配 uuid。
func (m *Manager) Provision(keyID string) (*KeyBundle, error) {
	if keyID == "" {
		keyID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[keyID]; ok {
		return nil, xerrors.New(xerrors.CodeConflict, "密钥 ID 已存在",
			xerrors.WithMetadata("key_id", keyID))
	}
	entry, err := newEntry(keyID)
	if err != nil {
		return nil, err
	}
	m.entries[keyID] = entry
	m.activeID = keyID

	m.audit.Info("密钥已开通", slog.String("key_id", keyID))
	bundle := entry.bundle
	return &bundle, nil
}

// Rotate 将指定密钥标记为 retired 并生成一把新的 active 密钥。
func (m *Manager) Rotate(keyID string) (*KeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[keyID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeKeyNotFound, "",
			xerrors.WithMetadata("key_id", keyID))
	}
	if entry.bundle.Status != StatusActive {
		return nil, xerrors.New(xerrors.CodeKeyNotActive, "只能轮换 active 状态的密钥",
			xerrors.WithMetadata("key_id", keyID),
			xerrors.WithMetadata("status", string(entry.bundle.Status)))
	}

	successor, err := newEntry(uuid.NewString())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.bundle.Status = StatusRetired
	entry.bundle.RetiredAt = &now
	entry.bundle.SuccessorID = successor.bundle.KeyID

	m.entries[successor.bundle.KeyID] = successor
	m.activeID = successor.bundle.KeyID

	m.audit.Info("密钥已轮换",
		slog.String("retired_key_id", keyID),
		slog.String("new_key_id", successor.bundle.KeyID))
	bundle := successor.bundle
	return &bundle, nil
}

// Revoke 将密钥标记为 compromised，立即生效。
func (m *Manager) Revoke(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[keyID]
	if !ok {
		return xerrors.New(xerrors.CodeKeyNotFound, "",
			xerrors.WithMetadata("key_id", keyID))
	}
	entry.bundle.Status = StatusCompromised
	if m.activeID == keyID {
		m.activeID = ""
	}

	m.audit.Warn("密钥已吊销", slog.String("key_id", keyID))
	return nil
}

// GetSigningKey 返回当前的 active 密钥；没有可用密钥时报错。
func (m *Manager) GetSigningKey() (*KeyBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeID == "" {
		return nil, xerrors.New(xerrors.CodeKeyNotFound, "当前没有 active 签名密钥")
	}
	entry := m.entries[m.activeID]
	if entry == nil || entry.bundle.Status != StatusActive {
		return nil, xerrors.New(xerrors.CodeKeyNotActive, "",
			xerrors.WithMetadata("key_id", m.activeID))
	}
	bundle := entry.bundle
	return &bundle, nil
}

// Get 返回任意状态的密钥（验证历史签名时需要）。
func (m *Manager) Get(keyID string) (*KeyBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[keyID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeKeyNotFound, "",
			xerrors.WithMetadata("key_id", keyID))
	}
	bundle := entry.bundle
	return &bundle, nil
}

func (m *Manager) privateKey(keyID string) (*keyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[keyID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeKeyNotFound, "",
			xerrors.WithMetadata("key_id", keyID))
	}
	return entry, nil
}

func newEntry(keyID string) (*keyEntry, error) {
	private, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成密钥失败")
	}
	return &keyEntry{
		bundle: KeyBundle{
			KeyID:     keyID,
			Status:    StatusActive,
			CreatedAt: time.Now().UTC(),
			PublicKey: ethcrypto.CompressPubkey(&private.PublicKey),
		},
		private: private,
	}, nil
}
