package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ragflow/llm"
)

// MockProvider 是 llm.Provider 的模拟实现，按调用顺序返回预设内容。
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	err       error
	requests  []*llm.ChatRequest
}

var _ llm.Provider = (*MockProvider)(nil)

// NewMockProvider 创建模拟 Provider
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{name: "mock", responses: responses}
}

// WithError 让后续调用全部失败
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	content := ""
	if len(m.responses) > 0 {
		content = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	return &llm.ChatResponse{
		Provider: m.name,
		Model:    req.Model,
		Choices:  []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}},
	}, nil
}

// Requests 返回收到的请求
func (m *MockProvider) Requests() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.requests...)
}
