// Package session 把编排器包装成按线程持续的对话：加载历史、运行、追加消息、保存检查点。
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/agent"
	"github.com/BaSui01/ragflow/agent/checkpoint"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner 执行一次编排，*agent.Pipeline 实现该接口
type Runner interface {
	Run(ctx context.Context, initial agent.State, opts ...workflow.RunOption) (agent.State, error)
}

var _ Runner = (*agent.Pipeline)(nil)

// Config 持久化保留策略，0 表示不限制
type Config struct {
	MaxHistoryMessages int
	MaxTraceSteps      int
}

// Result 一次对话轮次的结果
type Result struct {
	ThreadID     string
	RunID        string
	CheckpointID string
	State        agent.State
	Execution    *workflow.ExecutionHistory
}

// Option 会话选项
type Option func(*Session)

// WithObservers 为每次运行附加节点观察者（如指标采集）
func WithObservers(obs ...workflow.Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, obs...) }
}

// RunRecorder 每次运行结束后回调（指标用），失败时 err 非空
type RunRecorder func(route string, duration time.Duration, rewrites int, err error)

// WithRunRecorder 设置运行回调
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session 对话会话管理器。同一线程的轮次串行执行，不同线程互不阻塞。
type Session struct {
	runner    Runner
	store     checkpoint.Store
	cfg       Config
	logger    *zap.Logger
	observers []workflow.Observer
	recorder  RunRecorder
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// New 创建会话管理器
func New(runner Runner, store checkpoint.Store, cfg Config, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		runner: runner,
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "session")),
		now:    time.Now,
		locks:  make(map[string]*threadLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke 在线程上回答一个问题。threadID 为空时使用默认线程。
// 运行失败时不修改已持久化的历史。
func (s *Session) Invoke(ctx context.Context, question, threadID string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "question is required").WithHTTPStatus(400)
	}
	if threadID == "" {
		threadID = checkpoint.DefaultThreadID
	}
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	unlock := s.lock(threadID)
	defer unlock()

	prev, err := s.store.Load(ctx, threadID)
	if err != nil && !checkpoint.IsNotFound(err) {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	var history []types.ChatMessage
	if prev != nil {
		history = prev.ChatHistory
	}

	runID := uuid.NewString()
	execution := workflow.NewExecutionHistory(runID)
	runOpts := []workflow.RunOption{workflow.WithRunObserver(execution)}
	for _, obs := range s.observers {
		runOpts = append(runOpts, workflow.WithRunObserver(obs))
	}

	ctx = types.WithThreadID(ctx, threadID)
	final, err := s.runner.Run(ctx, agent.NewState(question, history), runOpts...)
	execution.Complete(err)
	if s.recorder != nil {
		s.recorder(string(final.Route), execution.Duration, final.QueryRewriteCount, err)
	}
	if err != nil {
		s.logger.Error("run failed",
			zap.String("thread_id", threadID),
			zap.String("run_id", runID),
			zap.Strings("path", execution.Path()),
			zap.Error(err))
		return nil, err
	}

	cp := checkpoint.Next(prev, threadID)
	now := s.now().UTC()
	cp.ChatHistory = append(cp.ChatHistory,
		types.ChatMessage{Role: types.RoleUser, Content: question, Timestamp: now},
		types.ChatMessage{Role: types.RoleAssistant, Content: final.Generation, Timestamp: now},
	)
	cp.LastRun = s.retain(cp, final)
	cp.Metadata = map[string]string{"run_id": runID}
	cp.CreatedAt = now

	if err := s.store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save thread %s: %w", threadID, err)
	}

	s.logger.Info("run completed",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID),
		zap.String("route", string(final.Route)),
		zap.Int("rewrites", final.QueryRewriteCount),
		zap.Int("steps", len(final.Steps)),
		zap.Duration("duration", execution.Duration))

	return &Result{
		ThreadID:     threadID,
		RunID:        runID,
		CheckpointID: cp.ID,
		State:        final,
		Execution:    execution,
	}, nil
}

// retain 应用保留策略，并返回去掉重复历史后的运行快照
func (s *Session) retain(cp *checkpoint.Checkpoint, final agent.State) *agent.State {
	if n := s.cfg.MaxHistoryMessages; n > 0 && len(cp.ChatHistory) > n {
		cp.ChatHistory = append([]types.ChatMessage(nil), cp.ChatHistory[len(cp.ChatHistory)-n:]...)
	}
	snapshot := final
	snapshot.ChatHistory = nil
	if n := s.cfg.MaxTraceSteps; n > 0 && len(snapshot.Steps) > n {
		snapshot.Steps = append([]types.Step(nil), snapshot.Steps[len(snapshot.Steps)-n:]...)
	}
	return &snapshot
}

// History 返回线程的检查点
func (s *Session) History(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	if threadID == "" {
		threadID = checkpoint.DefaultThreadID
	}
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	return s.store.Load(ctx, threadID)
}

// Clear 删除线程
func (s *Session) Clear(ctx context.Context, threadID string) error {
	if threadID == "" {
		threadID = checkpoint.DefaultThreadID
	}
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return err
	}
	unlock := s.lock(threadID)
	defer unlock()
	return s.store.Delete(ctx, threadID)
}

func (s *Session) lock(threadID string) func() {
	s.mu.Lock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &threadLock{}
		s.locks[threadID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, threadID)
		}
		s.mu.Unlock()
	}
}
