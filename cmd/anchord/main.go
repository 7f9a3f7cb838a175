package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AnchorTrail/internal/anchor"
	"AnchorTrail/internal/commitment"
	"AnchorTrail/internal/config"
	"AnchorTrail/internal/evidence"
	"AnchorTrail/internal/keys"
	"AnchorTrail/internal/notify"
	"AnchorTrail/internal/receipt"
	"AnchorTrail/internal/worm"
	"AnchorTrail/pkg/logger"
)

// main 是 anchord 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("anchord 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("ANCHORTRAIL_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "anchortrail.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditEnabled,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	backend, err := createBackend(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := worm.NewStore(ctx, cfg.Policy, backend)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.L().Warn("关闭 WORM 日志失败", slog.Any("error", err))
		}
	}()

	deriver, err := anchor.NewDeriver(cfg.Policy)
	if err != nil {
		return err
	}
	engine, err := commitment.NewEngine(cfg.Policy)
	if err != nil {
		return err
	}
	chain, err := receipt.NewChain(cfg.Policy, engine)
	if err != nil {
		return err
	}

	manager := keys.NewManager()
	bundle, err := manager.Provision("")
	if err != nil {
		return err
	}
	signer := keys.NewSigner(manager)

	publisher, err := createPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.L().Warn("关闭发布端失败", slog.Any("error", err))
		}
	}()

	service, err := evidence.NewService(cfg.Policy, deriver, engine, store, chain, manager, signer, publisher)
	if err != nil {
		return err
	}

	logger.L().Info("anchord 已启动",
		slog.String("worm_driver", cfg.Storage.WORM.Driver),
		slog.String("notify_driver", cfg.Notify.Driver),
		slog.String("signing_key", bundle.KeyID),
		slog.Uint64("worm_size", store.Size()),
		slog.String("worm_root", store.Root()))

	return auditLoop(ctx, cfg, service)
}

// auditLoop 周期性地做完整性巡检，直到收到退出信号。
func auditLoop(ctx context.Context, cfg *config.Config, service *evidence.Service) error {
	interval := time.Duration(cfg.Runtime.AuditIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L().Info("anchord 正在退出")
			return nil
		case <-ticker.C:
			if err := service.VerifyAll(ctx); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				// 完整性巡检失败必须让进程退出，而不是带伤继续服务。
				return err
			}
			logger.Audit().Info("完整性巡检通过")
		}
	}
}

func createBackend(ctx context.Context, cfg *config.Config) (worm.Backend, error) {
	switch cfg.Storage.WORM.Driver {
	case "", "memory":
		return worm.NewMemoryBackend(), nil
	case "mysql":
		return worm.NewMySQLBackend(cfg.Storage.WORM.DSN, worm.MySQLOptions{
			MaxOpenConns: cfg.Storage.WORM.MaxOpenConns,
			MaxIdleConns: cfg.Storage.WORM.MaxIdleConns,
		})
	case "redis":
		return worm.NewRedisBackend(ctx, worm.RedisBackendConfig{
			Address:  cfg.Storage.WORM.Redis.Address,
			Password: cfg.Storage.WORM.Redis.Password,
			DB:       cfg.Storage.WORM.Redis.DB,
			Key:      cfg.Storage.WORM.Redis.Key,
		})
	default:
		return nil, fmt.Errorf("未知的 WORM 驱动: %s", cfg.Storage.WORM.Driver)
	}
}

func createPublisher(cfg *config.Config) (notify.Publisher, error) {
	switch cfg.Notify.Driver {
	case "", "none":
		return notify.NoopPublisher{}, nil
	case "rabbitmq":
		return notify.NewRabbitMQPublisher(notify.RabbitMQConfig{
			URL:     cfg.Notify.RabbitMQ.URL,
			Queue:   cfg.Notify.RabbitMQ.Queue,
			Durable: cfg.Notify.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的发布驱动: %s", cfg.Notify.Driver)
	}
}
