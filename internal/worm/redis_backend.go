package worm

import (
	"context"
	"encoding/json"
	stdErrors "errors"

	"github.com/redis/go-redis/v9"

	xerrors "AnchorTrail/internal/errors"
)

// RedisBackend 用 Redis list 保存记录：RPUSH 追加、LRANGE 顺序读取，
// 天然保持追加顺序。仅适合对持久性要求由 Redis 配置（AOF）兜底的场景。
type RedisBackend struct {
	client *redis.Client
	key    string
}

// RedisBackendConfig 描述 Redis 后端的连接参数。
type RedisBackendConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
}

// NewRedisBackend 创建 Redis 后端实例。
func NewRedisBackend(ctx context.Context, cfg RedisBackendConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	key := cfg.Key
	if key == "" {
		key = "anchortrail:worm"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisBackend{client: client, key: key}, nil
}

// Append 实现 Backend 接口。写入前校验 list 长度与序列号一致，
// 调用方（Store）已保证单写者，这里只是最后一道防线。
func (r *RedisBackend) Append(ctx context.Context, record Record) error {
	length, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis list 长度失败")
	}
	if record.Sequence != uint64(length)+1 {
		return xerrors.New(xerrors.CodeWORMIntegrity, "序列号与 Redis list 长度不一致")
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化记录失败")
	}
	if err := r.client.RPush(ctx, r.key, encoded).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 追加失败")
	}
	return nil
}

// All 按追加顺序返回全部记录。
func (r *RedisBackend) All(ctx context.Context) ([]Record, error) {
	values, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis list 失败")
	}
	records := make([]Record, 0, len(values))
	for _, value := range values {
		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录失败")
		}
		records = append(records, record)
	}
	return records, nil
}

// Latest 返回最新记录，空 list 返回 nil。
func (r *RedisBackend) Latest(ctx context.Context) (*Record, error) {
	value, err := r.client.LIndex(ctx, r.key, -1).Result()
	if stdErrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取最新记录失败")
	}
	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录失败")
	}
	return &record, nil
}

// Count 返回记录数。
func (r *RedisBackend) Count(ctx context.Context) (uint64, error) {
	length, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis list 长度失败")
	}
	return uint64(length), nil
}

// Close 关闭连接。
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
