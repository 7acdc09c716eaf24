package registry

import (
	"encoding/json"
	"testing"
)

// 未知字段必须在工厂层被拒绝
func TestStrictOptionsRejectUnknownField(t *testing.T) {
	if _, err := Tokenizer["approx"](json.RawMessage(`{"bytes_per_token":4,"bogus":1}`)); err == nil {
		t.Fatalf("approx: unknown field must fail")
	}
	cnt, err := Tokenizer["approx"](nil)
	if err != nil {
		t.Fatalf("approx defaults: %v", err)
	}
	if _, err := Batcher["greedy"](json.RawMessage(`{"nope":true}`), cnt); err == nil {
		t.Fatalf("greedy: unknown field must fail")
	}
}

func TestBatcherGreedyConstructs(t *testing.T) {
	cnt, _ := Tokenizer["approx"](nil)
	b, err := Batcher["greedy"](json.RawMessage(`{"max_tokens":500}`), cnt)
	if err != nil || b == nil {
		t.Fatalf("greedy: %v", err)
	}
}

func TestOracleMockConstructs(t *testing.T) {
	o, err := Oracle["mock"](json.RawMessage(`{"mode":"merge"}`))
	if err != nil || o == nil {
		t.Fatalf("mock: %v", err)
	}
}

func TestCacheRequiresOptions(t *testing.T) {
	if _, err := Cache["fsdir"](nil); err == nil {
		t.Fatalf("fsdir without dir must fail")
	}
	c, err := Cache["sqlite"](json.RawMessage(`{"dsn":":memory:"}`))
	if err != nil || c == nil {
		t.Fatalf("sqlite: %v", err)
	}
}

func TestRegisteredNames(t *testing.T) {
	for _, name := range []string{"gemini", "openai", "mock", "flaky"} {
		if Oracle[name] == nil {
			t.Fatalf("oracle %q not registered", name)
		}
	}
	if Reader["fs"] == nil || Writer["fs"] == nil {
		t.Fatalf("fs reader/writer must be registered")
	}
}
