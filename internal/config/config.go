package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 描述 anchord 在启动阶段需要加载的核心配置。
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Policy  Policy        `yaml:"policy"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// LoggingConfig 控制结构化日志与审计日志的输出。
type LoggingConfig struct {
	Level        string   `yaml:"level"`
	Format       string   `yaml:"format"`
	OutputPaths  []string `yaml:"output_paths"`
	AuditEnabled bool     `yaml:"audit_enabled"`
	AuditPath    string   `yaml:"audit_path"`
}

// StorageConfig 统一描述 WORM 日志后端的连接信息。
type StorageConfig struct {
	WORM WORMStoreConfig `yaml:"worm"`
}

// WORMStoreConfig 选择 memory、mysql 或 redis 后端。
type WORMStoreConfig struct {
	Driver       string      `yaml:"driver"`
	DSN          string      `yaml:"dsn"`
	Redis        RedisConfig `yaml:"redis"`
	MaxOpenConns int         `yaml:"max_open_conns"`
	MaxIdleConns int         `yaml:"max_idle_conns"`
}

// RedisConfig 描述 Redis 后端的连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// NotifyConfig 描述封板根事件的外发渠道。
type NotifyConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 发布端的连接参数。
type RabbitMQConfig struct {
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
	Durable bool   `yaml:"durable"`
}

// RuntimeConfig 放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir              string `yaml:"data_dir"`
	AuditIntervalSeconds int    `yaml:"audit_interval_seconds"`
}

// Policy 是不可变的策略配置：哈希算法、规范化规则、Merkle 结构、
// 默认承诺类型与存储模式版本。进程启动时构造一次，之后显式传递给
// 各个组件，任何组件都不得在使用后修改它。
type Policy struct {
	HashAlgorithm     string `yaml:"hash_algorithm"`
	Canonicalization  string `yaml:"canonicalization"`
	MerkleFanout      int    `yaml:"merkle_fanout"`
	MerklePadding     string `yaml:"merkle_padding"`
	DefaultCommitment string `yaml:"default_commitment"`
	SaltLength        int    `yaml:"salt_length"`
	SchemaVersion     string `yaml:"schema_version"`
}

// 策略字段的合法取值。
const (
	HashSHA256           = "sha256"
	CanonicalJSONSorted  = "json-sorted"
	PaddingDuplicateLast = "duplicate-last"
	DefaultSchemaVersion = "1.0"
)

// DefaultPolicy 返回系统默认策略。
func DefaultPolicy() Policy {
	return Policy{
		HashAlgorithm:     HashSHA256,
		Canonicalization:  CanonicalJSONSorted,
		MerkleFanout:      2,
		MerklePadding:     PaddingDuplicateLast,
		DefaultCommitment: "salted",
		SaltLength:        16,
		SchemaVersion:     DefaultSchemaVersion,
	}
}

// Validate 校验策略字段，非法取值直接拒绝而不是静默回退。
func (p Policy) Validate() error {
	if p.HashAlgorithm != HashSHA256 {
		return fmt.Errorf("不支持的哈希算法: %q", p.HashAlgorithm)
	}
	if p.Canonicalization != CanonicalJSONSorted {
		return fmt.Errorf("不支持的规范化规则: %q", p.Canonicalization)
	}
	if p.MerkleFanout != 2 {
		return fmt.Errorf("不支持的 Merkle fanout: %d", p.MerkleFanout)
	}
	if p.MerklePadding != PaddingDuplicateLast {
		return fmt.Errorf("不支持的 Merkle 补齐规则: %q", p.MerklePadding)
	}
	switch p.DefaultCommitment {
	case "plaintext", "salted", "hmac":
	default:
		return fmt.Errorf("不支持的默认承诺类型: %q", p.DefaultCommitment)
	}
	if p.SaltLength <= 0 {
		return fmt.Errorf("盐长度必须为正数: %d", p.SaltLength)
	}
	if p.SchemaVersion == "" {
		return errors.New("schema_version 不能为空")
	}
	return nil
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("策略校验失败: %w", err)
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Storage.WORM.Driver == "" {
		c.Storage.WORM.Driver = "memory"
	}
	if c.Storage.WORM.Redis.Key == "" {
		c.Storage.WORM.Redis.Key = "anchortrail:worm"
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "none"
	}
	if c.Notify.RabbitMQ.Queue == "" {
		c.Notify.RabbitMQ.Queue = "anchortrail.roots"
	}

	defaults := DefaultPolicy()
	if c.Policy.HashAlgorithm == "" {
		c.Policy.HashAlgorithm = defaults.HashAlgorithm
	}
	if c.Policy.Canonicalization == "" {
		c.Policy.Canonicalization = defaults.Canonicalization
	}
	if c.Policy.MerkleFanout == 0 {
		c.Policy.MerkleFanout = defaults.MerkleFanout
	}
	if c.Policy.MerklePadding == "" {
		c.Policy.MerklePadding = defaults.MerklePadding
	}
	if c.Policy.DefaultCommitment == "" {
		c.Policy.DefaultCommitment = defaults.DefaultCommitment
	}
	if c.Policy.SaltLength == 0 {
		c.Policy.SaltLength = defaults.SaltLength
	}
	if c.Policy.SchemaVersion == "" {
		c.Policy.SchemaVersion = defaults.SchemaVersion
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.AuditIntervalSeconds <= 0 {
		c.Runtime.AuditIntervalSeconds = 300
	}
	if c.Logging.AuditEnabled && c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}
