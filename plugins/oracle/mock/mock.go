// Package mock 无网络 oracle：用于模块/流程调试与集成测试。
package mock

import (
	"context"
	"fmt"
	"strings"

	"llmhlb/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// Mode: 响应模式。
	//  - "": 留空或未知值时，默认 "merge"。
	//  - "merge": 空行视为段落边界；段内各行以单空格连接为一行，
	//    空行吞并。模拟理想的重排响应。
	//  - "identity": 原样回显输入（所有换行都被认为是硬换行）。
	//  - "noisy": 返回与输入无共同单词的杜撰文本（模拟退化响应）。
	Mode string `json:"mode,omitempty"`
}

type Oracle struct {
	mode string
}

func New(opts *Options) *Oracle {
	mode := "merge"
	if opts != nil && strings.TrimSpace(opts.Mode) != "" {
		mode = opts.Mode
	}
	return &Oracle{mode: mode}
}

var _ contract.Oracle = (*Oracle)(nil)

func (o *Oracle) Reflow(ctx context.Context, text string, _ contract.DocumentID, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch o.mode {
	case "identity":
		return text, nil
	case "noisy":
		return "zxqv wvut plomb quarx", nil
	}
	return Merge(text), nil
}

// Merge 把空行分隔的段落各自并为一行。导出供其它调试实现复用。
func Merge(text string) string {
	var paras []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			paras = append(paras, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			flush()
			continue
		}
		cur = append(cur, ln)
	}
	flush()
	return strings.Join(paras, "\n")
}

// Recorder 包装任意 oracle 并记录每次调用的键与输入，测试用。
type Recorder struct {
	Inner contract.Oracle
	Calls []string
}

func (r *Recorder) Reflow(ctx context.Context, text string, id contract.DocumentID, batch int) (string, error) {
	r.Calls = append(r.Calls, fmt.Sprintf("%s#%d", id, batch))
	return r.Inner.Reflow(ctx, text, id, batch)
}
