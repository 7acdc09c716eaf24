package greedy

import (
	"context"
	"fmt"
	"strings"

	"llmhlb/pkg/contract"
)

// Options 为贪心 Batcher 的可选配置（最小必要）。
type Options struct {
	// MaxTokens: 每批 token 预算。候选缓冲的计数达到或超过该值时，
	// 停在上一行。<=0 时采用默认 1400。
	MaxTokens int `json:"max_tokens"`
}

const defaultMaxTokens = 1400

// Batcher 实现 token 预算内的贪心连续取行。
// 计数能力由注入的 TokenCounter 提供；本组件纯计算、无内部状态。
type Batcher struct {
	counter contract.TokenCounter
	limit   int
}

// New 创建贪心 Batcher。counter 不可为空。
func New(opts *Options, counter contract.TokenCounter) (*Batcher, error) {
	if counter == nil {
		return nil, fmt.Errorf("greedy: %w: nil token counter", contract.ErrInvalidInput)
	}
	limit := defaultMaxTokens
	if opts != nil && opts.MaxTokens > 0 {
		limit = opts.MaxTokens
	}
	return &Batcher{counter: counter, limit: limit}, nil
}

// Next 自 start 起贪心追加行（换行拼接），每次试探性追加后对候选缓冲整体计数；
// 一旦追加下一行会达到/超出预算，则停在该行之前，返回已累积文本与开区间 end。
// 首行单独超预算时仍单独发出，保证只要有剩余行就绝不返回空批。
func (b *Batcher) Next(ctx context.Context, lines []string, start contract.Index) (string, contract.Index, error) {
	if err := ctxErr(ctx); err != nil {
		return "", 0, err
	}
	if int(start) < 0 || int(start) >= len(lines) {
		return "", 0, fmt.Errorf("greedy: %w: start %d out of range [0,%d)", contract.ErrInvalidInput, start, len(lines))
	}
	var buf strings.Builder
	for id := int(start); id < len(lines); id++ {
		if err := ctxErr(ctx); err != nil {
			return "", 0, err
		}
		tmp := lines[id]
		if buf.Len() > 0 {
			tmp = buf.String() + "\n" + lines[id]
		}
		if b.counter.Count(tmp) >= b.limit {
			if id == int(start) {
				// 单行即超预算：仍然单独发出（推进保证）。
				return lines[id], contract.Index(id + 1), nil
			}
			return buf.String(), contract.Index(id), nil
		}
		buf.Reset()
		buf.WriteString(tmp)
	}
	return buf.String(), contract.Index(len(lines)), nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

var _ contract.Batcher = (*Batcher)(nil)
