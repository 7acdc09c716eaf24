// Package rate 为 oracle 上游调用提供每 provider 的请求/令牌配额。
// 装配层按 provider 限额各构造一个 Quota；gated oracle 在每次
// Reflow 前申请（1 请求 + 批文本 token 估值）。
package rate

import (
	"context"
	"sync"
	"time"

	"llmhlb/pkg/contract"
)

// Limits: 单个 provider 的限额。0 表示该维度不限。
type Limits struct {
	RPM             int // 每分钟请求数
	TPM             int // 每分钟 token 数
	MaxTokensPerReq int // 单次请求 token 上限
}

// Quota 是单 provider 的令牌桶配额（并发安全）。
// 请求与 token 两个维度独立连续补充（RPM/60、TPM/60 每秒），
// 各自封顶在一分钟额度。
type Quota struct {
	mu   sync.Mutex
	lim  Limits
	clk  func() time.Time
	req  float64
	tok  float64
	last time.Time
}

// NewQuota 构造配额；clk 为空使用 time.Now（测试注入冻结时钟）。
func NewQuota(lim Limits, clk func() time.Time) *Quota {
	if clk == nil {
		clk = time.Now
	}
	return &Quota{
		lim:  lim,
		clk:  clk,
		req:  float64(lim.RPM),
		tok:  float64(lim.TPM),
		last: clk(),
	}
}

// refill 按经过时间补充；时钟回拨视为无时间流逝。
func (q *Quota) refill(now time.Time) {
	if now.Before(q.last) {
		return
	}
	sec := now.Sub(q.last).Seconds()
	if sec <= 0 {
		return
	}
	if q.lim.RPM > 0 {
		q.req += sec * float64(q.lim.RPM) / 60
		if q.req > float64(q.lim.RPM) {
			q.req = float64(q.lim.RPM)
		}
	}
	if q.lim.TPM > 0 {
		q.tok += sec * float64(q.lim.TPM) / 60
		if q.tok > float64(q.lim.TPM) {
			q.tok = float64(q.lim.TPM)
		}
	}
	q.last = now
}

func (q *Quota) fits(tokens int) bool {
	if q.lim.RPM > 0 && q.req < 1 {
		return false
	}
	if q.lim.TPM > 0 && q.tok < float64(tokens) {
		return false
	}
	return true
}

func (q *Quota) take(tokens int) {
	if q.lim.RPM > 0 {
		if q.req--; q.req < 0 {
			q.req = 0
		}
	}
	if q.lim.TPM > 0 {
		if q.tok -= float64(tokens); q.tok < 0 {
			q.tok = 0
		}
	}
}

// Try 非阻塞申请一次请求 + tokens 额度。
func (q *Quota) Try(tokens int) bool {
	if tokens < 0 {
		return false
	}
	if q.lim.MaxTokensPerReq > 0 && tokens > q.lim.MaxTokensPerReq {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refill(q.clk())
	if !q.fits(tokens) {
		return false
	}
	q.take(tokens)
	return true
}

// Wait 阻塞直到额度可用或 ctx 结束。
// tokens 超出单请求上限时立即返回 ErrInvalidInput：
// 等待不可能使其通过，该批只能由上游减小预算。
func (q *Quota) Wait(ctx context.Context, tokens int) error {
	if tokens < 0 {
		return contract.ErrInvalidInput
	}
	if q.lim.MaxTokensPerReq > 0 && tokens > q.lim.MaxTokensPerReq {
		return contract.ErrInvalidInput
	}
	const floor = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.mu.Lock()
		q.refill(q.clk())
		if q.fits(tokens) {
			q.take(tokens)
			q.mu.Unlock()
			return nil
		}
		d := q.shortfall(tokens)
		q.mu.Unlock()
		if d < floor {
			d = floor
		}
		if err := pause(ctx, d); err != nil {
			return err
		}
	}
}

// shortfall 估算两维度同时满足所需的等待时长。
func (q *Quota) shortfall(tokens int) time.Duration {
	var sec float64
	if q.lim.RPM > 0 && q.req < 1 {
		sec = (1 - q.req) * 60 / float64(q.lim.RPM)
	}
	if q.lim.TPM > 0 && q.tok < float64(tokens) {
		if s := (float64(tokens) - q.tok) * 60 / float64(q.lim.TPM); s > sec {
			sec = s
		}
	}
	return time.Duration(sec * float64(time.Second))
}

// pause 分片睡眠（步长 200ms），及时响应取消。
func pause(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}
