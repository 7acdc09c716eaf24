package contract

import (
	"context"
	"errors"
)

// Oracle: 文本重排黑盒（通常为 LLM）。给定按行折行的文本，
// 尝试将其重新并段；对相同 (id, batch, text) 幂等、可缓存。
// 失败必须上抛，不得以空文本替代。
type Oracle interface {
	Reflow(ctx context.Context, text string, id DocumentID, batch int) (string, error)
}

// TokenCounter: 文本→token 数。同一运行内同一文本必须返回相同计数。
// 纯计算，无 I/O，可并发调用。
type TokenCounter interface {
	Count(text string) int
}

// Cache: oracle 响应的持久缓存，键为 (DocumentID, batch)。
// 读穿/写穿语义；损坏或不完整的条目必须表现为未命中，而非错误数据。
type Cache interface {
	Get(ctx context.Context, id DocumentID, batch int) (text string, ok bool, err error)
	Put(ctx context.Context, id DocumentID, batch int, text string) error
}

// 最小错误分类（用于上层策略判定）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrOffsetMismatch: 批首行与游标处文档行不一致——游标记账缺陷，
	// 属致命内部错误，必须中止本次运行。
	ErrOffsetMismatch = errors.New("offset mismatch")
)

// UpstreamError 用于承载 HTTP 上游错误的最小诊断信息。
// 实现方应提供可选的状态码与简短消息，便于结构化日志字段记录。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
