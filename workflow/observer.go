package workflow

import (
	"context"
	"sync"
	"time"
)

// Observer 节点执行观察者
type Observer interface {
	OnNodeStart(ctx context.Context, node string, step int)
	OnNodeEnd(ctx context.Context, node string, step int, duration time.Duration, err error)
}

// ObserverFuncs 以函数字段实现 Observer，未设置的回调忽略
type ObserverFuncs struct {
	Start func(ctx context.Context, node string, step int)
	End   func(ctx context.Context, node string, step int, duration time.Duration, err error)
}

func (o ObserverFuncs) OnNodeStart(ctx context.Context, node string, step int) {
	if o.Start != nil {
		o.Start(ctx, node, step)
	}
}

func (o ObserverFuncs) OnNodeEnd(ctx context.Context, node string, step int, d time.Duration, err error) {
	if o.End != nil {
		o.End(ctx, node, step, d, err)
	}
}

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// NodeExecution records the execution of a single node
type NodeExecution struct {
	Node      string          `json:"node"`
	Step      int             `json:"step"`
	StartTime time.Time       `json:"start_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory 记录一次运行的节点路径，作为 RunObserver 使用
type ExecutionHistory struct {
	mu        sync.RWMutex
	RunID     string           `json:"run_id"`
	StartTime time.Time        `json:"start_time"`
	Duration  time.Duration    `json:"duration"`
	Status    ExecutionStatus  `json:"status"`
	Nodes     []*NodeExecution `json:"nodes"`
	Error     string           `json:"error,omitempty"`
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(runID string) *ExecutionHistory {
	return &ExecutionHistory{
		RunID:     runID,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
}

func (h *ExecutionHistory) OnNodeStart(_ context.Context, node string, step int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Nodes = append(h.Nodes, &NodeExecution{
		Node:      node,
		Step:      step,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	})
}

func (h *ExecutionHistory) OnNodeEnd(_ context.Context, node string, step int, d time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Nodes) - 1; i >= 0; i-- {
		n := h.Nodes[i]
		if n.Node != node || n.Step != step {
			continue
		}
		n.Duration = d
		if err != nil {
			n.Status = ExecutionStatusFailed
			n.Error = err.Error()
		} else {
			n.Status = ExecutionStatusCompleted
		}
		return
	}
}

// Complete marks the execution as finished
func (h *ExecutionHistory) Complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Duration = time.Since(h.StartTime)
	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
	} else {
		h.Status = ExecutionStatusCompleted
	}
}

// Path 返回按执行顺序排列的节点名
func (h *ExecutionHistory) Path() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	path := make([]string, len(h.Nodes))
	for i, n := range h.Nodes {
		path[i] = n.Node
	}
	return path
}

// GetNodes returns a copy of the node executions
func (h *ExecutionHistory) GetNodes() []NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	nodes := make([]NodeExecution, len(h.Nodes))
	for i, n := range h.Nodes {
		nodes[i] = *n
	}
	return nodes
}
