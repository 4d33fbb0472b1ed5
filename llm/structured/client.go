package structured

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/retry"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// Prompt is one rendered prompt: a system instruction plus a user turn.
type Prompt struct {
	// Name identifies the task (router, grader, generator ...) in logs and metrics.
	Name        string
	System      string
	User        string
	Temperature float64
}

// Completer is the completion service used by pipeline nodes.
type Completer interface {
	// Complete returns free text.
	Complete(ctx context.Context, p Prompt) (string, error)
	// CompleteStructured fills out with a validated structured result.
	CompleteStructured(ctx context.Context, p Prompt, out Shape) error
}

// CallObserver 在每次补全结束后回调（用于指标）。
type CallObserver func(task string, duration time.Duration, err error)

// Client implements Completer over an llm.Provider.
type Client struct {
	provider  llm.Provider
	retryer   retry.Retryer
	model     string
	maxTokens int
	observer  CallObserver
	logger    *zap.Logger
}

// Option 配置 Client。
type Option func(*Client)

func WithModel(model string) Option        { return func(c *Client) { c.model = model } }
func WithMaxTokens(n int) Option           { return func(c *Client) { c.maxTokens = n } }
func WithRetryer(r retry.Retryer) Option   { return func(c *Client) { c.retryer = r } }
func WithObserver(o CallObserver) Option   { return func(c *Client) { c.observer = o } }
func WithLogger(logger *zap.Logger) Option { return func(c *Client) { c.logger = logger } }

// NewClient creates a Client. Without WithRetryer, the default backoff policy is used.
func NewClient(provider llm.Provider, opts ...Option) *Client {
	c := &Client{provider: provider}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "completer"), zap.String("provider", provider.Name()))
	if c.retryer == nil {
		c.retryer = retry.NewBackoffRetryer(nil, c.logger)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	text, err := c.call(ctx, p, p.System, llm.ResponseFormatText)
	if err == nil && text == "" {
		err = types.NewError(types.ErrMalformedOutput, fmt.Sprintf("%s: empty completion", p.Name))
	}
	c.observe(p.Name, start, err)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) CompleteStructured(ctx context.Context, p Prompt, out Shape) error {
	start := time.Now()
	raw, err := c.call(ctx, p, p.System+buildSchemaInstruction(out), llm.ResponseFormatJSON)
	if err == nil {
		err = Decode(raw, out)
		if err != nil {
			c.logger.Warn("malformed structured output",
				zap.String("task", p.Name),
				zap.String("shape", out.ShapeName()),
				zap.String("raw", truncate(raw, 300)),
				zap.Error(err),
			)
		}
	}
	c.observe(p.Name, start, err)
	return err
}

func (c *Client) call(ctx context.Context, p Prompt, system string, format llm.ResponseFormat) (string, error) {
	req := &llm.ChatRequest{
		Model:          c.model,
		MaxTokens:      c.maxTokens,
		Temperature:    float32(p.Temperature),
		ResponseFormat: format,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: p.User},
		},
		Metadata: map[string]string{"task": p.Name},
	}
	if traceID, ok := types.TraceID(ctx); ok {
		req.TraceID = traceID
	}

	return retry.DoWithResult(ctx, c.retryer, func() (string, error) {
		resp, err := c.provider.Completion(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.FirstContent()
	})
}

func (c *Client) observe(task string, start time.Time, err error) {
	d := time.Since(start)
	if err != nil {
		c.logger.Debug("completion failed", zap.String("task", task), zap.Duration("duration", d), zap.Error(err))
	}
	if c.observer != nil {
		c.observer(task, d, err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
