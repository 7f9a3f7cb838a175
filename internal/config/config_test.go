package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "anchortrail.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("default format not applied: %s", cfg.Logging.Format)
	}
	if cfg.Storage.WORM.Driver != "memory" {
		t.Fatalf("default worm driver not applied: %s", cfg.Storage.WORM.Driver)
	}
	if cfg.Notify.Driver != "none" {
		t.Fatalf("default notify driver not applied: %s", cfg.Notify.Driver)
	}
	if cfg.Policy != DefaultPolicy() {
		t.Fatalf("default policy not applied: %+v", cfg.Policy)
	}
	if cfg.Runtime.AuditIntervalSeconds != 300 {
		t.Fatalf("default audit interval not applied: %d", cfg.Runtime.AuditIntervalSeconds)
	}
	if !filepath.IsAbs(cfg.Runtime.DataDir) {
		t.Fatalf("data dir must be resolved to an absolute path: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	path := writeConfig(t, `
policy:
  hash_algorithm: md5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("md5 policy must be rejected")
	}

	path = writeConfig(t, `
policy:
  merkle_fanout: 4
`)
	if _, err := Load(path); err == nil {
		t.Fatal("non-binary fanout must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must be an error")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must be an error")
	}
}

func TestPolicyValidate(t *testing.T) {
	policy := DefaultPolicy()
	if err := policy.Validate(); err != nil {
		t.Fatalf("default policy must validate: %v", err)
	}

	policy.DefaultCommitment = "zkp"
	if err := policy.Validate(); err == nil {
		t.Fatal("unknown commitment type must be rejected")
	}

	policy = DefaultPolicy()
	policy.SaltLength = 0
	if err := policy.Validate(); err == nil {
		t.Fatal("zero salt length must be rejected")
	}
}
