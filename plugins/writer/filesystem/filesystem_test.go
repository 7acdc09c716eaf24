package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"llmhlb/pkg/contract"
)

type breaksArtifact struct {
	DocumentID string `json:"document_id"`
	LineCount  int    `json:"line_count"`
	Decisions  []bool `json:"decisions"`
}

func mustWriter(t *testing.T, opts *Options) *Writer {
	t.Helper()
	w, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return w
}

func encodeBreaks(t *testing.T, a breaksArtifact) []byte {
	t.Helper()
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func assertNoTempLeftover(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// 判定工件落盘后可读回且字段完整。
func TestWriteBreaksArtifact(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, &Options{OutputDir: dir})
	art := breaksArtifact{DocumentID: "book.txt", LineCount: 5, Decisions: []bool{true, true, false, false}}
	if err := w.Write(context.Background(), "book.txt.breaks.json", bytes.NewReader(encodeBreaks(t, art))); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "book.txt.breaks.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got breaksArtifact
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.DocumentID != "book.txt" || got.LineCount != 5 || len(got.Decisions) != 4 {
		t.Fatalf("artifact mismatch: %+v", got)
	}
	assertNoTempLeftover(t, dir)
}

// 重跑同一文档时原子替换旧工件。
func TestRerunReplacesArtifact(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, &Options{OutputDir: dir})
	first := encodeBreaks(t, breaksArtifact{DocumentID: "d", LineCount: 3, Decisions: []bool{false, false}})
	second := encodeBreaks(t, breaksArtifact{DocumentID: "d", LineCount: 3, Decisions: []bool{true, true}})
	if err := w.Write(context.Background(), "d.breaks.json", bytes.NewReader(first)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := w.Write(context.Background(), "d.breaks.json", bytes.NewReader(second)); err != nil {
		t.Fatalf("second: %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "d.breaks.json"))
	var got breaksArtifact
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Decisions[0] || !got.Decisions[1] {
		t.Fatalf("old artifact survived rerun: %+v", got)
	}
	assertNoTempLeftover(t, dir)
}

// 重排文本工件与判定工件同目录共存。
func TestReflowArtifactAlongside(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, &Options{OutputDir: dir})
	reflow := "The quick brown fox jumps over the lazy dog.\n\nA new paragraph starts here.\n"
	if err := w.Write(context.Background(), "book.txt.reflow.txt", strings.NewReader(reflow)); err != nil {
		t.Fatalf("write reflow: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "book.txt.reflow.txt"))
	if err != nil || string(b) != reflow {
		t.Fatalf("reflow artifact: %v %q", err, string(b))
	}
}

// 扁平模式：嵌套 DocumentID 只保留工件文件名。
func TestFlatKeepsArtifactName(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, &Options{OutputDir: dir})
	if err := w.Write(context.Background(), "novels/book.txt.breaks.json", strings.NewReader("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "book.txt.breaks.json")); err != nil {
		t.Fatalf("flat artifact missing: %v", err)
	}
}

// 镜像模式：保留目录层级，拒绝逃逸输出根。
func TestMirroredTreeAndEscape(t *testing.T) {
	dir := t.TempDir()
	flat := false
	w := mustWriter(t, &Options{OutputDir: dir, Flat: &flat})
	if err := w.Write(context.Background(), "novels/book.txt.breaks.json", strings.NewReader("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "novels", "book.txt.breaks.json")); err != nil {
		t.Fatalf("mirrored artifact missing: %v", err)
	}
	for _, id := range []string{"../escape.breaks.json", "..", ".", filepath.Join(dir, "abs.breaks.json")} {
		if _, err := w.artifactPath(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %q: expect path invalid, got %v", id, err)
		}
	}
}

// 非原子写路径。
func TestNonAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	a := false
	w := mustWriter(t, &Options{OutputDir: dir, Atomic: &a})
	if err := w.Write(context.Background(), "d.breaks.json", strings.NewReader("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "d.breaks.json")); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestWriteCancelled(t *testing.T) {
	w := mustWriter(t, &Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "d.breaks.json", strings.NewReader("{}")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("nil opts must fail")
	}
	if _, err := New(&Options{}); err == nil {
		t.Fatalf("empty output dir must fail")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

// 原子写中途失败不得残留临时文件或半写工件。
func TestAtomicCleanupOnCopyError(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, &Options{OutputDir: dir})
	if err := w.Write(context.Background(), "d.breaks.json", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("leftover files %v", entries)
	}
}
