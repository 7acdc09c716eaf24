package diag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"llmhlb/pkg/contract"
)

// TestClassify 错误分类覆盖
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrRateLimited, CodeBudget},
		{contract.ErrBudgetExceeded, CodeBudget},
		{contract.ErrResponseInvalid, CodeProtocol},
		{contract.ErrInvalidInput, CodeInvariant},
		{fmt.Errorf("detect: %w", contract.ErrOffsetMismatch), CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{&os.PathError{Op: "open", Path: "x", Err: errors.New("no")}, CodeIO},
		{errors.New("mystery"), CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

// TestLoggerEvents 事件字段经 zap core 输出
func TestLoggerEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerWithCore(core, "corr-1")

	tm := l.StartWith("oracle", "reflow", "doc.txt", "0")
	tm.Finish("reflow", 3)
	l.ErrorWith("oracle", string(CodeNetwork), "reflow failed", nil, "doc.txt", "1")
	l.DebugStart("detector", "noise_floor_stop", "doc.txt", "2", map[string]string{"cursor": "9"})

	all := logs.All()
	if len(all) != 4 {
		t.Fatalf("expect 4 events, got %d", len(all))
	}
	start := all[0]
	if start.Message != "reflow" {
		t.Fatalf("unexpected msg %q", start.Message)
	}
	ctxMap := start.ContextMap()
	if ctxMap["comp"] != "oracle" || ctxMap["stage"] != "start" || ctxMap["doc_id"] != "doc.txt" {
		t.Fatalf("unexpected start fields: %v", ctxMap)
	}
	if ctxMap["corr_id"] != "corr-1" {
		t.Fatalf("missing corr_id: %v", ctxMap)
	}
	fin := all[1].ContextMap()
	if fin["stage"] != "finish" || fin["count"] != int64(3) {
		t.Fatalf("unexpected finish fields: %v", fin)
	}
	errEv := all[2]
	if errEv.Level != zapcore.ErrorLevel || errEv.ContextMap()["code"] != string(CodeNetwork) {
		t.Fatalf("unexpected error event: %v", errEv)
	}
}

// TestLoggerLevelGate info 级别下 debug 事件被滤除
func TestLoggerLevelGate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLoggerWithCore(core, "c")
	l.DebugStart("detector", "x", "", "", nil)
	if logs.Len() != 0 {
		t.Fatalf("debug event must be gated at info level")
	}
}

// TestMetrics 计数器累加
func TestMetrics(t *testing.T) {
	base := OpCount("t_comp", "finish", "success")
	IncOp("t_comp", "finish", "success")
	IncOp("t_comp", "finish", "success")
	if OpCount("t_comp", "finish", "success") != base+2 {
		t.Fatalf("op counter not incremented")
	}
	be := ErrorCount("t_comp", "network")
	IncError("t_comp", "network")
	if ErrorCount("t_comp", "network") != be+1 {
		t.Fatalf("error counter not incremented")
	}
}

// TestRotatingFileWriteRotate 写入与轮转
func TestRotatingFileWriteRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 32)
	defer w.Close()
	line := []byte(strings.Repeat("a", 20) + "\n")
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	// 第二条触发轮转
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expect rotated + current, got %d entries", len(ents))
	}
	cur, err := os.ReadFile(filepath.Join(dir, "llmhlb-current.txt"))
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if !bytes.Equal(cur, line) {
		t.Fatalf("current content mismatch")
	}
}

// TestTerminalNonTTY 非 TTY 输出打点
func TestTerminalNonTTY(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, true)
	term.RunStart(2, "gemini")
	term.DocStart("dir/book.txt")
	term.DocProgress(1) // 非 TTY 下无行内刷新
	term.DocFinish(true, 1500*time.Millisecond)
	term.RunFinish(true, 2*time.Second)
	out := buf.String()
	for _, want := range []string{"[run]", "book.txt", "[done]", "[ok]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("terminal output missing %q:\n%s", want, out)
		}
	}
}

// TestTerminalDisabled 禁用态恒为 no-op
func TestTerminalDisabled(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)
	term.RunStart(1, "x")
	term.DocStart("a")
	term.DocFinish(true, time.Second)
	if buf.Len() != 0 {
		t.Fatalf("disabled terminal must not write")
	}
}
