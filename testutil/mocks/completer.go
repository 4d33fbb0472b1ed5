// =============================================================================
// 🤖 ScriptedCompleter - 补全服务模拟实现
// =============================================================================
// 按任务名（Prompt.Name）排队返回预设回复，结构化调用走与真实客户端相同的解析校验
//
// 使用方法:
//
//	c := mocks.NewScriptedCompleter().
//		On("router", `{"route":"direct","reasoning":"greeting"}`).
//		Default("generator", "Hi there!")
//
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/ragflow/llm/structured"
)

// CompleterCall 一次补全调用记录
type CompleterCall struct {
	Task   string
	Prompt structured.Prompt
}

type reply struct {
	text string
	err  error
}

// ScriptedCompleter 实现 structured.Completer
type ScriptedCompleter struct {
	mu       sync.Mutex
	queues   map[string][]reply
	defaults map[string]reply
	calls    []CompleterCall
}

var _ structured.Completer = (*ScriptedCompleter)(nil)

// NewScriptedCompleter 创建空脚本
func NewScriptedCompleter() *ScriptedCompleter {
	return &ScriptedCompleter{
		queues:   make(map[string][]reply),
		defaults: make(map[string]reply),
	}
}

// On 为任务追加按顺序消费的回复
func (c *ScriptedCompleter) On(task string, replies ...string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range replies {
		c.queues[task] = append(c.queues[task], reply{text: r})
	}
	return c
}

// OnError 为任务追加一次失败
func (c *ScriptedCompleter) OnError(task string, err error) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[task] = append(c.queues[task], reply{err: err})
	return c
}

// Default 设置队列耗尽后的回复
func (c *ScriptedCompleter) Default(task, text string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults[task] = reply{text: text}
	return c
}

// Complete 返回下一条回复
func (c *ScriptedCompleter) Complete(ctx context.Context, p structured.Prompt) (string, error) {
	return c.next(ctx, p)
}

// CompleteStructured 取下一条回复并按 out 的形状解析校验
func (c *ScriptedCompleter) CompleteStructured(ctx context.Context, p structured.Prompt, out structured.Shape) error {
	raw, err := c.next(ctx, p)
	if err != nil {
		return err
	}
	return structured.Decode(raw, out)
}

func (c *ScriptedCompleter) next(ctx context.Context, p structured.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CompleterCall{Task: p.Name, Prompt: p})
	if q := c.queues[p.Name]; len(q) > 0 {
		c.queues[p.Name] = q[1:]
		return q[0].text, q[0].err
	}
	if r, ok := c.defaults[p.Name]; ok {
		return r.text, r.err
	}
	return "", fmt.Errorf("no scripted reply for task %q", p.Name)
}

// Calls 返回全部调用记录
func (c *ScriptedCompleter) Calls() []CompleterCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CompleterCall(nil), c.calls...)
}

// CallCount 返回某个任务的调用次数
func (c *ScriptedCompleter) CallCount(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Task == task {
			n++
		}
	}
	return n
}

// PromptsFor 返回某个任务收到的全部 prompt
func (c *ScriptedCompleter) PromptsFor(task string) []structured.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []structured.Prompt
	for _, call := range c.calls {
		if call.Task == task {
			out = append(out, call.Prompt)
		}
	}
	return out
}
