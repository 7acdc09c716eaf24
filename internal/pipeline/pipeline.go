package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"llmhlb/internal/diag"
	"llmhlb/internal/textio"
	"llmhlb/pkg/contract"
)

// - 单点并发：仅此层管理并发；文档之间并行，文档内部严格串行。
// - 首错取消：任一文档失败，errgroup 取消其余文档并返回首错。
// - 重试以文档为单位：已完成批次的响应在缓存中，重跑只补缺口。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Detector contract.Detector
	Writer   contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	Concurrency int
	// MaxRetries: 文档级最大重试次数（>=0）。0 表示不重试。
	MaxRetries int
	// EmitText: 是否额外写出按判定重排后的文本。
	EmitText bool
}

// breaksArtifact: <doc>.breaks.json 的载荷。
// decisions[g] 为 true 表示第 g 与 g+1 行之间是软换行（应并为一行）。
type breaksArtifact struct {
	DocumentID string `json:"document_id"`
	LineCount  int    `json:"line_count"`
	Decisions  []bool `json:"decisions"`
}

// Run 执行完整流水线：Reader → Detector → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if set.Concurrency > 0 {
		g.SetLimit(set.Concurrency)
	} else {
		g.SetLimit(1)
	}

	rtimer := (*diag.Timer)(nil)
	if logger != nil {
		rtimer = logger.Start("reader", "iterate")
	}
	err := comp.Reader.Iterate(gctx, set.Inputs, func(id contract.DocumentID, rc io.ReadCloser) error {
		// yield 内读尽内容：rc 在返回后即关闭，worker 只拿字节。
		data, rerr := io.ReadAll(rc)
		_ = rc.Close()
		if rerr != nil {
			return fmt.Errorf("read %s: %w", id, rerr)
		}
		g.Go(func() error {
			return processDoc(gctx, comp, set, logger, id, data)
		})
		return nil
	})
	werr := g.Wait()
	if err != nil {
		if logger != nil {
			code := diag.Classify(err)
			logger.Error("reader", string(code), "iterate failed", nil)
			diag.IncOp("reader", "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError("reader", string(code))
			}
		}
		return fmt.Errorf("reader iterate: %w", err)
	}
	if rtimer != nil {
		rtimer.Finish("iterate", 0)
		diag.IncOp("reader", "finish", "success")
	}
	return werr
}

func processDoc(ctx context.Context, comp Components, set Settings, logger *diag.Logger, id contract.DocumentID, data []byte) error {
	if t := diag.GetTerminal(); t != nil {
		t.DocStart(string(id))
	}
	start := time.Now()
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.DocFinish(ok, time.Since(start))
		}
	}()

	lines := textio.DocumentLines(string(data))
	if len(lines) == 0 {
		// 空文档：写出空判定工件，不进检测循环。
		if err := writeArtifacts(ctx, comp, set, id, nil, nil); err != nil {
			return err
		}
		ok = true
		return nil
	}

	dtimer := (*diag.Timer)(nil)
	if logger != nil {
		dtimer = logger.StartWith("detector", "detect", string(id), "")
	}
	var decisions contract.Decisions
	var err error
	attempts := set.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		decisions, err = comp.Detector.Detect(ctx, lines, id)
		if err == nil {
			break
		}
		if attempt+1 < attempts && shouldRetryDetect(err) {
			if logger != nil {
				logger.DebugStart("detector", "retry", string(id), "", map[string]string{
					"attempt": fmt.Sprintf("%d", attempt+1),
				})
			}
			if serr := sleepWithCtx(ctx, 200*time.Millisecond); serr != nil {
				err = serr
				break
			}
			continue
		}
		break
	}
	if err != nil {
		if logger != nil {
			code := diag.Classify(err)
			logger.ErrorWith("detector", string(code), "detect failed", nil, string(id), "")
			diag.IncOp("detector", "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError("detector", string(code))
			}
		}
		return fmt.Errorf("detect %s: %w", id, err)
	}
	if dtimer != nil {
		dtimer.Finish("detect", int64(len(decisions)))
		diag.IncOp("detector", "finish", "success")
	}

	if err := writeArtifacts(ctx, comp, set, id, lines, decisions); err != nil {
		if logger != nil {
			code := diag.Classify(err)
			logger.ErrorWith("writer", string(code), "write failed", nil, string(id), "")
			diag.IncOp("writer", "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError("writer", string(code))
			}
		}
		return err
	}
	if logger != nil {
		diag.IncOp("writer", "finish", "success")
	}
	ok = true
	return nil
}

func writeArtifacts(ctx context.Context, comp Components, set Settings, id contract.DocumentID, lines []string, decisions contract.Decisions) error {
	art := breaksArtifact{
		DocumentID: string(id),
		LineCount:  len(lines),
		Decisions:  decisions,
	}
	if art.Decisions == nil {
		art.Decisions = []bool{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&art); err != nil {
		return fmt.Errorf("encode breaks: %w", err)
	}
	if err := comp.Writer.Write(ctx, contract.ArtifactID(string(id)+".breaks.json"), &buf); err != nil {
		return fmt.Errorf("writer write(breaks): %w", err)
	}
	if set.EmitText {
		if err := comp.Writer.Write(ctx, contract.ArtifactID(string(id)+".reflow.txt"), strings.NewReader(Reflow(lines, decisions))); err != nil {
			return fmt.Errorf("writer write(reflow): %w", err)
		}
	}
	return nil
}

// Reflow 按判定重排：软换行以空格连接，硬换行保留。
func Reflow(lines []string, decisions contract.Decisions) string {
	if len(lines) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(lines[0])
	for i := 1; i < len(lines); i++ {
		if i-1 < len(decisions) && decisions[i-1] {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte('\n')
		}
		sb.WriteString(lines[i])
	}
	sb.WriteByte('\n')
	return sb.String()
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Detector == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}

// shouldRetryDetect: 根据错误类型判断是否重试整篇文档。
// - 取消/超时：不重试；
// - 预算/限流、网络类错误：重试（已有批次命中缓存，只补缺口）；
// - 协议类（响应无效）：重试；
// - 不变量类（偏移不符等）与未知错误：不重试。
func shouldRetryDetect(err error) bool {
	if err == nil {
		return false
	}
	switch diag.Classify(err) {
	case diag.CodeBudget, diag.CodeNetwork, diag.CodeProtocol:
		return true
	default:
		return false
	}
}

// sleepWithCtx: 可取消的 sleep（最小实现）。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
