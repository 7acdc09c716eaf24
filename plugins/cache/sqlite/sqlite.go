// Package sqlite 以单文件 SQLite 库持久化 oracle 响应。
// 适合一次处理大量文档的长跑：单库、单连接、主键 (doc_id, batch)。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"llmhlb/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// DSN: 数据库路径（如 cache.db 或 :memory:）。必需。
	DSN string `json:"dsn"`
}

const schema = `
CREATE TABLE IF NOT EXISTS reflow_cache (
	doc_id     TEXT    NOT NULL,
	batch      INTEGER NOT NULL,
	text       TEXT    NOT NULL,
	created_at TEXT    NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (doc_id, batch)
);`

type Cache struct {
	db *sql.DB
}

// New 打开（必要时创建）缓存库并就地建表。
func New(opts *Options) (*Cache, error) {
	if opts == nil || strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("sqlite: %w: dsn required", contract.ErrInvalidInput)
	}
	db, err := sql.Open("sqlite", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// modernc 驱动下单连接即可，避免写锁竞争
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: bootstrap schema: %w", err)
	}
	return &Cache{db: db}, nil
}

var _ contract.Cache = (*Cache)(nil)

func (c *Cache) Get(ctx context.Context, id contract.DocumentID, batch int) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx,
		`SELECT text FROM reflow_cache WHERE doc_id = ? AND batch = ?`,
		string(id), batch).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get: %w", err)
	}
	return text, true, nil
}

func (c *Cache) Put(ctx context.Context, id contract.DocumentID, batch int, text string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO reflow_cache (doc_id, batch, text) VALUES (?, ?, ?)
		 ON CONFLICT (doc_id, batch) DO UPDATE SET text = excluded.text, created_at = datetime('now')`,
		string(id), batch, text)
	if err != nil {
		return fmt.Errorf("sqlite: put: %w", err)
	}
	return nil
}

// Close 释放底层连接。
func (c *Cache) Close() error { return c.db.Close() }
