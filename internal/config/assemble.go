package config

import (
	"errors"
	"fmt"
	"strings"

	"llmhlb/internal/detect"
	"llmhlb/internal/diag"
	"llmhlb/internal/pipeline"
	"llmhlb/internal/rate"
	"llmhlb/pkg/registry"
	"llmhlb/plugins/oracle/cached"
	"llmhlb/plugins/oracle/gated"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxTokens <= 0 {
		return errors.New("config: max_tokens must be > 0")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if cfg.NoiseFloor < 0 {
		return errors.New("config: noise_floor must be >= 0")
	}
	if cfg.Oracle == "" {
		return errors.New("config: oracle not set")
	}
	prov, ok := cfg.Provider[cfg.Oracle]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.Oracle)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.Oracle)
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.MaxTokens > prov.Limits.MaxTokensPerReq {
		return fmt.Errorf("config: max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", cfg.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Tokenizer, d.Components.Tokenizer); registry.Tokenizer[name] == nil {
		return fmt.Errorf("config: tokenizer %q not registered", name)
	}
	if name := effName(cfg.Components.Batcher, d.Components.Batcher); registry.Batcher[name] == nil {
		return fmt.Errorf("config: batcher %q not registered", name)
	}
	if name := effName(cfg.Components.Cache, d.Components.Cache); name != "none" && registry.Cache[name] == nil {
		return fmt.Errorf("config: cache %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if registry.Oracle[prov.Client] == nil {
		return fmt.Errorf("config: oracle client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 装配链：tokenizer → batcher → oracle → [gated] → [cached] → detector。
// 缓存装饰在最外层：命中不消耗限流额度。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config, logger *diag.Logger) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	tn := effName(cfg.Components.Tokenizer, d.Components.Tokenizer)
	bn := effName(cfg.Components.Batcher, d.Components.Batcher)
	cn := effName(cfg.Components.Cache, d.Components.Cache)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	// 构造实例
	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	counter, err := registry.Tokenizer[tn](cfg.Options.Tokenizer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	batcherOpts := cfg.Options.Batcher
	if len(batcherOpts) == 0 {
		// 顶层 max_tokens 是批预算的权威来源
		batcherOpts = []byte(fmt.Sprintf(`{"max_tokens":%d}`, cfg.MaxTokens))
	}
	b, err := registry.Batcher[bn](batcherOpts, counter)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// Oracle 客户端
	prov := cfg.Provider[cfg.Oracle]
	oracle, err := registry.Oracle[prov.Client](prov.Options)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// provider 配额（任一限额启用时装饰）
	if prov.Limits.RPM > 0 || prov.Limits.TPM > 0 || prov.Limits.MaxTokensPerReq > 0 {
		quota := rate.NewQuota(rate.Limits{
			RPM:             prov.Limits.RPM,
			TPM:             prov.Limits.TPM,
			MaxTokensPerReq: prov.Limits.MaxTokensPerReq,
		}, nil)
		oracle, err = gated.New(oracle, quota, counter)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, err
		}
	}

	// 响应缓存（"none" 关闭）
	if cn != "none" {
		cache, cerr := registry.Cache[cn](cfg.Options.Cache)
		if cerr != nil {
			return pipeline.Components{}, pipeline.Settings{}, cerr
		}
		oracle, err = cached.New(oracle, cache)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, err
		}
	}

	det, err := detect.New(b, oracle, counter, &detect.Options{NoiseFloor: cfg.NoiseFloor}, logger)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{
		Reader:   r,
		Detector: det,
		Writer:   w,
	}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		EmitText:    cfg.EmitText != nil && *cfg.EmitText,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
