// Package openai 基于 Chat Completions HTTP API 的重排 oracle。
// 兼容任何 OpenAI 形态的服务（Azure/OpenRouter 等）via base_url/extra_headers。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"llmhlb/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string `json:"model"`           // 为空则使用默认
	APIKeyEnv      string `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int    `json:"timeout_seconds"` // 可选 client 级超时（秒）
	// 第三方兼容（最小）：
	EndpointPath       string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL（以 http 开头）
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`        // 追加/覆盖请求头
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
}

// instruction: 重排指令。要求逐词保留，仅合并被硬换行打断的行。
const instruction = "You will receive text whose lines were wrapped at a fixed width. " +
	"Rejoin lines that belong to the same sentence or paragraph into single lines. " +
	"Keep every word unchanged and in the original order; do not add, remove or translate anything. " +
	"Keep genuine paragraph breaks as single line breaks. " +
	"Reply with the reformatted text only, no commentary."

type Oracle struct {
	hc          *http.Client
	url         string
	apiKey      string
	model       string
	extraH      map[string]string
	disableAuth bool
	do          func(*http.Request) (*http.Response, error)
}

// New 构造 OpenAI oracle。缺少 API key 时快速失败。
func New(opts *Options) (*Oracle, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key := o.APIKey
	if key == "" && o.APIKeyEnv != "" {
		key = os.Getenv(o.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	// 未配置超时则采用安全默认 60s
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	// 解析 URL：允许 endpoint_path 为完整 URL
	fullURL := o.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		base := strings.TrimRight(o.BaseURL, "/")
		path := strings.TrimLeft(o.EndpointPath, "/")
		fullURL = base + "/" + path
	}
	return &Oracle{
		hc:          hc,
		url:         fullURL,
		apiKey:      key,
		model:       o.Model,
		extraH:      o.ExtraHeaders,
		disableAuth: o.DisableDefaultAuth,
		do:          hc.Do,
	}, nil
}

var _ contract.Oracle = (*Oracle)(nil)

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type oaReq struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Temperature float64     `json:"temperature"`
}
type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string          { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool          { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool        { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int    { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// Reflow: 单次调用，同步返回。
func (o *Oracle) Reflow(ctx context.Context, text string, _ contract.DocumentID, _ int) (string, error) {
	body, err := json.Marshal(&oaReq{
		Model: o.model,
		Messages: []oaMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: text},
		},
		// 重排要求确定性输出
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !o.disableAuth {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range o.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := o.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", contract.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		// 分类：4xx 视为输入/配置无效；5xx/408 视为网络/上游问题
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return "", upstreamError{status: resp.StatusCode, msg: msg}
		}
		return "", fmt.Errorf("openai upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput)
	}
	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return "", contract.ErrResponseInvalid
	}
	return strings.TrimRight(or.Choices[0].Message.Content, "\n"), nil
}
