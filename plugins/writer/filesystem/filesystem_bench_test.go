package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"llmhlb/pkg/contract"
)

// BenchmarkWriteBreaksArtifact 以万行文档规模的判定向量测量工件写入。
func BenchmarkWriteBreaksArtifact(b *testing.B) {
	const lineCount = 10000
	decisions := make([]bool, lineCount-1)
	for i := range decisions {
		decisions[i] = i%3 != 0
	}
	payload, err := json.Marshal(map[string]any{
		"document_id": "bench.txt",
		"line_count":  lineCount,
		"decisions":   decisions,
	})
	if err != nil {
		b.Fatalf("marshal: %v", err)
	}
	dir := b.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	id := contract.ArtifactID("bench.txt.breaks.json")
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := w.Write(ctx, id, bytes.NewReader(payload)); err != nil {
			b.Fatalf("write: %v", err)
		}
	}
}
