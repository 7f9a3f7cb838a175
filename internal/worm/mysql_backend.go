package worm

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AnchorTrail/internal/errors"
)

// MySQLBackend 使用 MySQL 持久化 WORM 记录。
// 表上只执行 INSERT 和 SELECT，序列号主键天然拒绝覆盖写。
type MySQLBackend struct {
	db *sql.DB
}

// MySQLOptions 控制连接池参数。
type MySQLOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// NewMySQLBackend 创建 MySQLBackend 并初始化表结构。
func NewMySQLBackend(dsn string, opts MySQLOptions) (*MySQLBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	backend := &MySQLBackend{db: db}
	if err := backend.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func (s *MySQLBackend) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS worm_records (
        sequence_no BIGINT UNSIGNED PRIMARY KEY,
        timestamp VARCHAR(40) NOT NULL,
        payload_hash CHAR(64) NOT NULL,
        previous_root CHAR(64) NOT NULL,
        root CHAR(64) NOT NULL,
        schema_version VARCHAR(16) NOT NULL,
        INDEX idx_worm_root (root)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 worm_records 表失败")
	}
	return nil
}

// Append 实现 Backend 接口。主键冲突意味着有人试图重写历史序列号。
func (s *MySQLBackend) Append(ctx context.Context, record Record) error {
	const stmt = `INSERT INTO worm_records
        (sequence_no, timestamp, payload_hash, previous_root, root, schema_version)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.Sequence, record.Timestamp, record.PayloadHash,
		record.PrevRoot, record.Root, record.SchemaVersion)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return xerrors.Wrap(xerrors.CodeWORMIntegrity, err, "序列号已存在，拒绝覆盖写")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 worm_records 失败")
	}
	return nil
}

// All 按序列号升序返回全部记录。
func (s *MySQLBackend) All(ctx context.Context) ([]Record, error) {
	const query = `SELECT sequence_no, timestamp, payload_hash, previous_root, root, schema_version
        FROM worm_records ORDER BY sequence_no ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 worm_records 失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.Sequence, &record.Timestamp, &record.PayloadHash,
			&record.PrevRoot, &record.Root, &record.SchemaVersion); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 worm_records 行失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历 worm_records 失败")
	}
	return records, nil
}

// Latest 返回最新记录，空表返回 nil。
func (s *MySQLBackend) Latest(ctx context.Context) (*Record, error) {
	const query = `SELECT sequence_no, timestamp, payload_hash, previous_root, root, schema_version
        FROM worm_records ORDER BY sequence_no DESC LIMIT 1`
	var record Record
	err := s.db.QueryRowContext(ctx, query).Scan(&record.Sequence, &record.Timestamp,
		&record.PayloadHash, &record.PrevRoot, &record.Root, &record.SchemaVersion)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询最新记录失败")
	}
	return &record, nil
}

// Count 返回记录数。
func (s *MySQLBackend) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM worm_records`).Scan(&count); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计记录数失败")
	}
	return count, nil
}

// Close 关闭连接池。
func (s *MySQLBackend) Close() error {
	return s.db.Close()
}
