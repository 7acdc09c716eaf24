package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"llmhlb/internal/detect"
	"llmhlb/pkg/contract"
	"llmhlb/plugins/batcher/greedy"
	"llmhlb/plugins/oracle/mock"
)

// memReader: 按 id 字典序遍历内存文档
type memReader struct {
	docs map[string]string
}

func (r *memReader) Iterate(_ context.Context, _ []string, yield func(contract.DocumentID, io.ReadCloser) error) error {
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := yield(contract.DocumentID(id), io.NopCloser(strings.NewReader(r.docs[id]))); err != nil {
			return err
		}
	}
	return nil
}

// memWriter: 并发安全的内存 Writer
type memWriter struct {
	mu   sync.Mutex
	arts map[string][]byte
}

func (w *memWriter) Write(_ context.Context, id contract.ArtifactID, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.arts == nil {
		w.arts = map[string][]byte{}
	}
	w.arts[string(id)] = data
	return nil
}

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

func newDetector(t *testing.T) contract.Detector {
	t.Helper()
	b, err := greedy.New(&greedy.Options{MaxTokens: 1000}, wordCounter{})
	require.NoError(t, err)
	d, err := detect.New(b, mock.New(nil), wordCounter{}, &detect.Options{NoiseFloor: 1}, nil)
	require.NoError(t, err)
	return d
}

func decodeBreaks(t *testing.T, raw []byte) (string, int, []bool) {
	t.Helper()
	var art struct {
		DocumentID string `json:"document_id"`
		LineCount  int    `json:"line_count"`
		Decisions  []bool `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(raw, &art))
	return art.DocumentID, art.LineCount, art.Decisions
}

func TestRunEndToEnd(t *testing.T) {
	doc := "The quick brown fox\njumps over\nthe lazy dog.\n\nA new paragraph starts here.\n"
	r := &memReader{docs: map[string]string{"book.txt": doc}}
	w := &memWriter{}
	comp := Components{Reader: r, Detector: newDetector(t), Writer: w}
	set := Settings{Inputs: []string{"mem"}, Concurrency: 1, EmitText: true}

	require.NoError(t, Run(context.Background(), comp, set, nil))

	id, lineCount, dec := decodeBreaks(t, w.arts["book.txt.breaks.json"])
	require.Equal(t, "book.txt", id)
	require.Equal(t, 5, lineCount)
	require.Equal(t, []bool{true, true, false, false}, dec)

	want := "The quick brown fox jumps over the lazy dog.\n\nA new paragraph starts here.\n"
	require.Equal(t, want, string(w.arts["book.txt.reflow.txt"]))
}

func TestRunManyDocsConcurrent(t *testing.T) {
	docs := map[string]string{}
	for _, id := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		docs[id] = "first wrapped line\ncontinues here.\n\nsecond paragraph stays.\n"
	}
	r := &memReader{docs: docs}
	w := &memWriter{}
	comp := Components{Reader: r, Detector: newDetector(t), Writer: w}
	set := Settings{Inputs: []string{"mem"}, Concurrency: 3}

	require.NoError(t, Run(context.Background(), comp, set, nil))
	for id := range docs {
		raw, ok := w.arts[id+".breaks.json"]
		require.True(t, ok, "missing artifact for %s", id)
		_, lineCount, dec := decodeBreaks(t, raw)
		require.Equal(t, 4, lineCount)
		require.Equal(t, []bool{true, false, false}, dec)
	}
}

func TestRunEmptyDocumentWritesEmptyArtifact(t *testing.T) {
	r := &memReader{docs: map[string]string{"empty.txt": ""}}
	w := &memWriter{}
	comp := Components{Reader: r, Detector: newDetector(t), Writer: w}

	require.NoError(t, Run(context.Background(), comp, Settings{Inputs: []string{"mem"}, Concurrency: 1}, nil))
	id, lineCount, dec := decodeBreaks(t, w.arts["empty.txt.breaks.json"])
	require.Equal(t, "empty.txt", id)
	require.Zero(t, lineCount)
	require.Empty(t, dec)
}

// failDetector: 恒定失败
type failDetector struct{ err error }

func (d failDetector) Detect(context.Context, []string, contract.DocumentID) (contract.Decisions, error) {
	return nil, d.err
}

func TestRunFirstErrorPropagates(t *testing.T) {
	r := &memReader{docs: map[string]string{"x.txt": "some content here\n"}}
	w := &memWriter{}
	comp := Components{Reader: r, Detector: failDetector{err: contract.ErrOffsetMismatch}, Writer: w}

	err := Run(context.Background(), comp, Settings{Inputs: []string{"mem"}, Concurrency: 2}, nil)
	require.ErrorIs(t, err, contract.ErrOffsetMismatch)
}

// retryDetector: 前 n 次失败后成功
type retryDetector struct {
	failures int
	calls    int
}

func (d *retryDetector) Detect(_ context.Context, lines []string, _ contract.DocumentID) (contract.Decisions, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, contract.ErrRateLimited
	}
	return make(contract.Decisions, len(lines)-1), nil
}

func TestRunRetriesRetryableErrors(t *testing.T) {
	r := &memReader{docs: map[string]string{"x.txt": "aa bb\ncc dd\n"}}
	w := &memWriter{}
	rd := &retryDetector{failures: 2}
	comp := Components{Reader: r, Detector: rd, Writer: w}

	require.NoError(t, Run(context.Background(), comp, Settings{Inputs: []string{"mem"}, Concurrency: 1, MaxRetries: 2}, nil))
	require.Equal(t, 3, rd.calls)
}

func TestRunDoesNotRetryInvariantErrors(t *testing.T) {
	r := &memReader{docs: map[string]string{"x.txt": "aa bb\ncc dd\n"}}
	rd := &retryDetector{failures: 1}
	// 不变量错误不重试
	comp := Components{Reader: r, Detector: failDetector{err: contract.ErrOffsetMismatch}, Writer: &memWriter{}}
	err := Run(context.Background(), comp, Settings{Inputs: []string{"mem"}, Concurrency: 1, MaxRetries: 5}, nil)
	require.ErrorIs(t, err, contract.ErrOffsetMismatch)
	require.Zero(t, rd.calls)
}

func TestRunSanity(t *testing.T) {
	err := Run(context.Background(), Components{}, Settings{}, nil)
	require.Error(t, err)
	err = Run(context.Background(), Components{Reader: &memReader{}, Detector: newDetector(t), Writer: &memWriter{}}, Settings{}, nil)
	require.Error(t, err, "empty inputs must fail")
}

func TestReflow(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}
	require.Equal(t, "a b\nc d\n", Reflow(lines, contract.Decisions{true, false, true}))
	require.Equal(t, "only\n", Reflow([]string{"only"}, nil))
	require.Equal(t, "", Reflow(nil, nil))
}

func TestReflowErrorsSurface(t *testing.T) {
	// writer 失败必须上抛
	r := &memReader{docs: map[string]string{"x.txt": "aa bb\ncc dd\n"}}
	comp := Components{Reader: r, Detector: newDetector(t), Writer: errWriter{}}
	err := Run(context.Background(), comp, Settings{Inputs: []string{"mem"}, Concurrency: 1}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errSink))
}

var errSink = errors.New("sink full")

type errWriter struct{}

func (errWriter) Write(context.Context, contract.ArtifactID, io.Reader) error { return errSink }
