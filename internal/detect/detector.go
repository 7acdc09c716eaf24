package detect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"llmhlb/internal/align"
	"llmhlb/internal/diag"
	"llmhlb/internal/textio"
	"llmhlb/pkg/contract"
)

// - 文档内严格串行：每轮批边界与游标推进依赖上一轮对齐结果；
// - 唯一阻塞点是 oracle 调用；独立文档可在外层并发（各自持有独立状态）；
// - 游标每轮严格递增且以文档长度为上界（终止保证）；
// - 取消检查点位于每轮循环起点；中断时不返回部分结果。

// Options 为检测循环的可选配置（最小必要）。
type Options struct {
	// NoiseFloor: 残段噪声下限（token 数）。批文本计数低于该值时视为
	// 不可成段的尾部残片，直接结束而不再请求 oracle——近空/畸形尾部
	// 会诱发 oracle 的退化响应（反复道歉等）。<=0 时采用默认 20。
	NoiseFloor int `json:"noise_floor"`
}

const defaultNoiseFloor = 20

// Detector 驱动 批→oracle→对齐 循环，跨批修复边界效应，
// 产出整篇文档的相邻行对判定向量。
type Detector struct {
	batcher contract.Batcher
	oracle  contract.Oracle
	counter contract.TokenCounter
	floor   int
	logger  *diag.Logger
}

// New 创建顺序检测器。batcher/oracle/counter 均不可为空；logger 可为 nil。
func New(b contract.Batcher, o contract.Oracle, c contract.TokenCounter, opts *Options, logger *diag.Logger) (*Detector, error) {
	if b == nil || o == nil || c == nil {
		return nil, fmt.Errorf("detect: %w: missing collaborator", contract.ErrInvalidInput)
	}
	floor := defaultNoiseFloor
	if opts != nil && opts.NoiseFloor > 0 {
		floor = opts.NoiseFloor
	}
	return &Detector{batcher: b, oracle: o, counter: c, floor: floor, logger: logger}, nil
}

// Detect 实现 contract.Detector。
// 状态机仅两态：有剩余行（推进）→ 游标到达文档末尾（完成）；无回退转移。
func (d *Detector) Detect(ctx context.Context, lines []string, id contract.DocumentID) (contract.Decisions, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("detect: %w: empty document", contract.ErrInvalidInput)
	}
	decisions := make(contract.Decisions, len(lines)-1)

	cursor := 0
	batchIdx := 0
	for cursor < len(lines) {
		// 取消检查点：每轮循环起点。
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, end, err := d.batcher.Next(ctx, lines, contract.Index(cursor))
		if err != nil {
			return nil, fmt.Errorf("batcher next: %w", err)
		}
		if d.counter.Count(text) < d.floor {
			// 尾部残片：放过，不再请求 oracle。
			if d.logger != nil {
				d.logger.DebugStart("detector", "noise_floor_stop", string(id), strconv.Itoa(batchIdx), map[string]string{
					"cursor": strconv.Itoa(cursor),
				})
			}
			break
		}

		otimer := (*diag.Timer)(nil)
		if d.logger != nil {
			otimer = d.logger.StartWith("oracle", "reflow", string(id), strconv.Itoa(batchIdx))
		}
		output, err := d.oracle.Reflow(ctx, text, id, batchIdx)
		if err != nil {
			if d.logger != nil {
				code := diag.Classify(err)
				d.logger.ErrorWith("oracle", string(code), "reflow failed", nil, string(id), strconv.Itoa(batchIdx))
				diag.IncOp("oracle", "error", "error")
				if code != diag.CodeUnknown {
					diag.IncError("oracle", string(code))
				}
			}
			return nil, fmt.Errorf("oracle reflow: %w", err)
		}
		if otimer != nil {
			otimer.Finish("reflow", int64(len(output)))
			diag.IncOp("oracle", "finish", "success")
		}

		// 批文本是以 \n 拼接的精确逆：不可用 Lines（会吞掉末尾空行）。
		batchLines := strings.Split(text, "\n")
		groups, _, _ := align.Align(batchLines, textio.Lines(output))

		// 批首行在文档中的全局行号；与游标记账互为校验。
		offset := int(end) - len(batchLines)
		if offset < 0 || offset >= len(lines) || lines[offset] != batchLines[0] {
			return nil, fmt.Errorf("detect: %w: batch %d first line does not match document line %d", contract.ErrOffsetMismatch, batchIdx, offset)
		}

		if int(end) < len(lines) {
			// 末组可能被批边界截断，不可作为最终证据；丢弃后游标退回到
			// 幸存证据之后，使被截断的段落连同其后内容在下一批重见全貌。
			if len(groups) > 1 {
				delete(groups, align.MaxOutputLine(groups))
			}
			if maxIn := align.MaxInputLine(groups); maxIn >= 0 {
				cursor = maxIn + offset + 1
			} else {
				// 全部分组被置信过滤：无证据可退回，推进到批末保证进度。
				cursor = int(end)
			}
		} else {
			cursor = len(lines)
		}

		// 同一输出单元内的全局相邻行对标记为归并。
		for _, set := range groups {
			for g := range set {
				if _, ok := set[g+1]; ok {
					decisions[g+offset] = true
				}
			}
		}
		batchIdx++
		if t := diag.GetTerminal(); t != nil {
			t.DocProgress(batchIdx)
		}
	}
	return decisions, nil
}

var _ contract.Detector = (*Detector)(nil)
