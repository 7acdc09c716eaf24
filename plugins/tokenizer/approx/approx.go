// Package approx 提供近似 token 计数：tokens ≈ ceil(utf8_bytes / bytes_per_token)。
// 无外部依赖、零初始化开销；精确计数不可用（离线、未知模型）时的退路。
package approx

import "llmhlb/pkg/contract"

// Options 近似计数配置。
type Options struct {
	// BytesPerToken: 每 token 的平均字节数。<=0 采用默认 4（英文散文经验值）。
	BytesPerToken int `json:"bytes_per_token"`
}

const defaultBytesPerToken = 4

// Counter 实现 contract.TokenCounter。
type Counter struct {
	bpt int
}

// New 构造近似计数器。opts 可为 nil。
func New(opts *Options) *Counter {
	bpt := defaultBytesPerToken
	if opts != nil && opts.BytesPerToken > 0 {
		bpt = opts.BytesPerToken
	}
	return &Counter{bpt: bpt}
}

func (c *Counter) Count(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + c.bpt - 1) / c.bpt
}

var _ contract.TokenCounter = (*Counter)(nil)
