// Package gated 以 provider 配额装饰任意 oracle：
// 每次 Reflow 先按批文本 token 估值申请额度，阻塞等待或随 ctx 取消。
package gated

import (
	"context"
	"fmt"

	"llmhlb/internal/rate"
	"llmhlb/pkg/contract"
)

type Oracle struct {
	inner   contract.Oracle
	quota   *rate.Quota
	counter contract.TokenCounter
}

// New 包装 inner。quota/counter 不可为空。
func New(inner contract.Oracle, quota *rate.Quota, counter contract.TokenCounter) (*Oracle, error) {
	if inner == nil || quota == nil || counter == nil {
		return nil, fmt.Errorf("gated: %w: missing collaborator", contract.ErrInvalidInput)
	}
	return &Oracle{inner: inner, quota: quota, counter: counter}, nil
}

var _ contract.Oracle = (*Oracle)(nil)

func (o *Oracle) Reflow(ctx context.Context, text string, id contract.DocumentID, batch int) (string, error) {
	if err := o.quota.Wait(ctx, o.counter.Count(text)); err != nil {
		return "", fmt.Errorf("gated: acquire quota: %w", err)
	}
	return o.inner.Reflow(ctx, text, id, batch)
}
