package registry

import (
	"bytes"
	"encoding/json"

	"llmhlb/pkg/contract"
	gbat "llmhlb/plugins/batcher/greedy"
	cfsd "llmhlb/plugins/cache/fsdir"
	csql "llmhlb/plugins/cache/sqlite"
	oflk "llmhlb/plugins/oracle/flaky"
	gmi "llmhlb/plugins/oracle/gemini"
	omock "llmhlb/plugins/oracle/mock"
	oai "llmhlb/plugins/oracle/openai"
	rfs "llmhlb/plugins/reader/filesystem"
	tapx "llmhlb/plugins/tokenizer/approx"
	ttik "llmhlb/plugins/tokenizer/tiktoken"
	wfs "llmhlb/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewTokenCounter 工厂签名：接收原样 JSON Options。
type NewTokenCounter func(raw json.RawMessage) (contract.TokenCounter, error)

// NewBatcher 工厂签名：接收原样 JSON Options 与已装配的计数器。
type NewBatcher func(raw json.RawMessage, counter contract.TokenCounter) (contract.Batcher, error)

// NewCache 工厂签名：接收原样 JSON Options。
type NewCache func(raw json.RawMessage) (contract.Cache, error)

// NewOracle 工厂签名：接收原样 JSON Options。
type NewOracle func(raw json.RawMessage) (contract.Oracle, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Tokenizer 工厂注册表。
var Tokenizer = map[string]NewTokenCounter{
	// tiktoken: BPE 精确计数（词表初始化可能失败）
	"tiktoken": func(raw json.RawMessage) (contract.TokenCounter, error) {
		var opts ttik.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ttik.New(&opts)
	},
	// approx: 字节比例近似计数
	"approx": func(raw json.RawMessage) (contract.TokenCounter, error) {
		var opts tapx.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return tapx.New(&opts), nil
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// greedy: 贪心 token 预算批次
	"greedy": func(raw json.RawMessage, counter contract.TokenCounter) (contract.Batcher, error) {
		var opts gbat.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gbat.New(&opts, counter)
	},
}

// Cache 工厂注册表。
var Cache = map[string]NewCache{
	// fsdir: 目录内 JSON 文件
	"fsdir": func(raw json.RawMessage) (contract.Cache, error) {
		var opts cfsd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cfsd.New(&opts)
	},
	// sqlite: 单文件 SQLite 库
	"sqlite": func(raw json.RawMessage) (contract.Cache, error) {
		var opts csql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return csql.New(&opts)
	},
}

// Oracle 工厂注册表。
var Oracle = map[string]NewOracle{
	"gemini": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts gmi.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gmi.New(&opts)
	},
	"openai": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts oai.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return oai.New(&opts)
	},
	"mock": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts omock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return omock.New(&opts), nil
	},
	"flaky": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts oflk.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return oflk.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
