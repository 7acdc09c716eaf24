// Package fsdir 以目录内 JSON 文件持久化 oracle 响应。
// 每个 (文档, 批序号) 一个文件；写入走同目录临时文件 + rename，
// 损坏或不可解析的条目按未命中处理（重新请求即自愈）。
package fsdir

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llmhlb/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Dir: 缓存根目录（必需）。不存在时首写创建。
	Dir string `json:"dir"`
}

// entry: 磁盘上的缓存条目。
type entry struct {
	DocumentID string `json:"document_id"`
	Batch      int    `json:"batch"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

type Cache struct {
	dir string
}

// New 创建目录缓存。
func New(opts *Options) (*Cache, error) {
	if opts == nil || strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("fsdir: %w: dir required", contract.ErrInvalidInput)
	}
	return &Cache{dir: opts.Dir}, nil
}

var _ contract.Cache = (*Cache)(nil)

func (c *Cache) Get(ctx context.Context, id contract.DocumentID, batch int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(c.keyPath(id, batch))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.DocumentID != string(id) || e.Batch != batch {
		// 损坏或键冲突：按未命中处理
		return "", false, nil
	}
	return e.Text, true, nil
}

func (c *Cache) Put(ctx context.Context, id contract.DocumentID, batch int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(entry{
		DocumentID: string(id),
		Batch:      batch,
		Text:       text,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	dest := c.keyPath(id, batch)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// keyPath: 文档 id 净化为安全文件名；附 fnv 短哈希避免净化后碰撞。
func (c *Cache) keyPath(id contract.DocumentID, batch int) string {
	name := sanitize(string(id))
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return filepath.Join(c.dir, fmt.Sprintf("%s_%08x_batch_%d.json", name, h.Sum32(), batch))
}

func sanitize(s string) string {
	const max = 80
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= max {
			break
		}
	}
	if b.Len() == 0 {
		return "doc"
	}
	return b.String()
}
