// Package flaky 带状态的调试 oracle：
// 第一次 Reflow 返回 ErrRateLimited；
// 第二次返回与输入无关的杜撰文本；
// 之后按段落归并正常响应。用于验证上层的错误分类与推进韧性。
package flaky

import (
	"context"
	"os"
	"sync/atomic"

	"llmhlb/pkg/contract"
	"llmhlb/plugins/oracle/mock"
)

// Options 定义可选项。
type Options struct {
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

type Oracle struct {
	logPath string
	count   atomic.Int32
}

// New 构造 Oracle。opts 可为 nil。
func New(opts *Options) *Oracle {
	o := &Oracle{}
	if opts != nil {
		o.logPath = opts.LogPath
	}
	return o
}

func (o *Oracle) log(s string) {
	if o.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(o.logPath, s+"\n")
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Reflow 实现 contract.Oracle。
func (o *Oracle) Reflow(ctx context.Context, text string, _ contract.DocumentID, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch o.count.Add(1) {
	case 1:
		o.log("rate_limited")
		return "", contract.ErrRateLimited
	case 2:
		o.log("hallucination")
		return "zxqv wvut plomb quarx", nil
	default:
		o.log("ok")
		return mock.Merge(text), nil
	}
}

var _ contract.Oracle = (*Oracle)(nil)
