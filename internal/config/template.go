package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock oracle 与合理限额（本地/离线调试友好）；
// - 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录，缓存落在 ./cache；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	emit := false
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		MaxTokens:   1400,
		MaxRetries:  2,
		NoiseFloor:  20,
		EmitText:    &emit,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
		Oracle:      "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"mode":"merge"}`),
				Limits:  Limits{RPM: 60, TPM: 10000, MaxTokensPerReq: 4096},
			},
			"openai": {
				Client: "openai",
				// 覆盖全部 OpenAI 选项键，值可为空/默认
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "",
  "api_key": "",
  "timeout_seconds": 60,
  "endpoint_path": "",
  "disable_default_auth": false,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 0, TPM: 0, MaxTokensPerReq: 0},
			},
			"gemini": {
				Client: "gemini",
				// 覆盖全部 Gemini 选项键，值可为空/默认
				Options: json.RawMessage(`{
  "model": "",
  "api_key_env": "",
  "api_key": ""
}`),
				Limits: Limits{RPM: 0, TPM: 0, MaxTokensPerReq: 0},
			},
		},
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"]
}`)
	cfg.Options.Tokenizer = json.RawMessage(`{
  "bytes_per_token": 4
}`)
	cfg.Options.Batcher = json.RawMessage(`{
  "max_tokens": 1400
}`)
	cfg.Options.Cache = json.RawMessage(`{
  "dir": "cache"
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true
}`)
	return cfg
}
