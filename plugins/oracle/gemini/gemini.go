// Package gemini 基于 Google GenAI SDK 的重排 oracle。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"llmhlb/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`     // 明文传入（不推荐，按需用于测试）
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
}

// instruction: 重排指令。要求逐词保留，仅合并被硬换行打断的行。
const instruction = "You will receive text whose lines were wrapped at a fixed width. " +
	"Rejoin lines that belong to the same sentence or paragraph into single lines. " +
	"Keep every word unchanged and in the original order; do not add, remove or translate anything. " +
	"Keep genuine paragraph breaks as single line breaks. " +
	"Reply with the reformatted text only, no commentary."

type Oracle struct {
	client *genai.Client
	model  string
}

// New 构造 Gemini oracle。缺少 API key 时快速失败。
func New(opts *Options) (*Oracle, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key := o.APIKey
	if key == "" {
		key = os.Getenv(o.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: key})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Oracle{client: client, model: o.Model}, nil
}

var _ contract.Oracle = (*Oracle)(nil)

func (o *Oracle) Reflow(ctx context.Context, text string, _ contract.DocumentID, _ int) (string, error) {
	cfg := &genai.GenerateContentConfig{
		// 重排要求确定性输出
		Temperature:       genai.Ptr[float32](0),
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	}
	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(text), cfg)
	if err != nil {
		return "", mapUpstream(err)
	}
	out := strings.TrimRight(resp.Text(), "\n")
	if out == "" {
		return "", fmt.Errorf("gemini: empty candidate: %w", contract.ErrResponseInvalid)
	}
	return out, nil
}

// upstreamError 实现 net.Error，便于将上游 5xx/408 归入网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string          { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool          { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool        { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int    { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func mapUpstream(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("gemini: %w: %s", contract.ErrRateLimited, apiErr.Message)
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code/100 == 5:
			return upstreamError{status: apiErr.Code, msg: apiErr.Message}
		default:
			return fmt.Errorf("gemini upstream %d: %s: %w", apiErr.Code, apiErr.Message, contract.ErrInvalidInput)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
