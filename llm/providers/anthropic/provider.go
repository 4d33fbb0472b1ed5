// Package anthropic 基于官方 anthropic-sdk-go 实现 llm.Provider。
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/internal/tlsutil"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/providers"
	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 2048
)

// jsonInstruction is appended to the system prompt when JSON output is requested;
// the Messages API has no response_format switch.
const jsonInstruction = "\n\nRespond with a single JSON object only. Do not wrap it in markdown."

// Config Anthropic Provider 配置
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	Timeout      time.Duration
}

// Provider implements llm.Provider using the Messages API.
type Provider struct {
	client    sdk.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// New creates a provider. SDK-level retries are disabled; llm/retry owns retry policy.
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		client:    sdk.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger.With(zap.String("component", "anthropic")),
	}
}

func (p *Provider) Name() string { return "anthropic" }

// Completion 将 system 消息合并为 System 块，其余消息按角色映射。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var system []string
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "at least one non-system message is required",
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
		}
	}

	systemText := strings.Join(system, "\n\n")
	if req.ResponseFormat == llm.ResponseFormatJSON {
		systemText += jsonInstruction
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(providers.ChooseModel(req, p.model, defaultModel)),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: sdk.Float(float64(req.Temperature)),
	}
	if strings.TrimSpace(systemText) != "" {
		params.System = []sdk.TextBlockParam{{Text: systemText}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	p.logger.Debug("completion done",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return &llm.ChatResponse{
		ID:       msg.ID,
		Provider: p.Name(),
		Model:    string(msg.Model),
		Choices: []llm.ChatChoice{{
			FinishReason: string(msg.StopReason),
			Message:      llm.Message{Role: llm.RoleAssistant, Content: text.String()},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}, nil
}

func (p *Provider) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.StatusCode, apiErr.Error(), p.Name())
	}
	return &llm.Error{
		Code: llm.ErrUpstreamError, Message: fmt.Sprintf("anthropic: %v", err),
		HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
	}
}
