// Package tiktoken 基于 BPE 词表的精确 token 计数。
// 预算含义与上游模型一致时，批次填充最充分；词表初始化失败时
// 调用方应回退 approx。
package tiktoken

import (
	"fmt"

	tk "github.com/pkoukk/tiktoken-go"

	"llmhlb/pkg/contract"
)

// Options 精确计数配置。Model 与 Encoding 二选一；都给时 Model 优先。
type Options struct {
	// Model: 上游模型名（如 gpt-4o），据此解析编码。
	Model string `json:"model"`
	// Encoding: 编码名（如 cl100k_base、o200k_base）。
	Encoding string `json:"encoding"`
}

const defaultEncoding = "cl100k_base"

// Counter 实现 contract.TokenCounter。
type Counter struct {
	enc *tk.Tiktoken
}

// New 构造精确计数器。词表解析失败返回错误（离线环境常见）。
func New(opts *Options) (*Counter, error) {
	model, encoding := "", defaultEncoding
	if opts != nil {
		model, encoding = opts.Model, opts.Encoding
		if encoding == "" {
			encoding = defaultEncoding
		}
	}
	var enc *tk.Tiktoken
	var err error
	if model != "" {
		enc, err = tk.EncodingForModel(model)
	} else {
		enc, err = tk.GetEncoding(encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("tiktoken: init encoding: %w", err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	return len(c.enc.Encode(s, nil, nil))
}

var _ contract.TokenCounter = (*Counter)(nil)
