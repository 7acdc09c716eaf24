// Package cached 以持久缓存 + 单飞去重装饰任意 oracle。
// 相同 (文档, 批序号) 的并发请求恰好触发一次上游调用；
// 缓存读取失败按未命中处理（上游兜底），写入失败上抛。
package cached

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"llmhlb/pkg/contract"
)

type Oracle struct {
	inner contract.Oracle
	cache contract.Cache
	sf    singleflight.Group
}

// New 包装 inner。二者均不可为空。
func New(inner contract.Oracle, cache contract.Cache) (*Oracle, error) {
	if inner == nil || cache == nil {
		return nil, fmt.Errorf("cached: %w: missing collaborator", contract.ErrInvalidInput)
	}
	return &Oracle{inner: inner, cache: cache}, nil
}

var _ contract.Oracle = (*Oracle)(nil)

func (o *Oracle) Reflow(ctx context.Context, text string, id contract.DocumentID, batch int) (string, error) {
	key := fmt.Sprintf("%s\x00%d", id, batch)
	v, err, _ := o.sf.Do(key, func() (any, error) {
		if cached, ok, err := o.cache.Get(ctx, id, batch); err == nil && ok {
			return cached, nil
		}
		out, err := o.inner.Reflow(ctx, text, id, batch)
		if err != nil {
			return "", err
		}
		if err := o.cache.Put(ctx, id, batch, out); err != nil {
			return "", fmt.Errorf("cached: persist response: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
