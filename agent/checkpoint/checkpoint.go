package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/BaSui01/ragflow/agent"
	"github.com/BaSui01/ragflow/types"
	"github.com/google/uuid"
)

// DefaultThreadID 未提供线程标识时使用
const DefaultThreadID = "default"

// Checkpoint 一个线程的持久化状态
type Checkpoint struct {
	ID          string              `json:"id"`
	ThreadID    string              `json:"thread_id"`
	ParentID    string              `json:"parent_id,omitempty"`
	Version     int                 `json:"version"`
	ChatHistory []types.ChatMessage `json:"chat_history"`
	// LastRun 上一次成功运行的最终状态
	LastRun   *agent.State      `json:"last_run,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store 线程检查点存储
type Store interface {
	// Load 加载线程的最新检查点，不存在时返回 THREAD_NOT_FOUND
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save 覆盖线程的最新检查点
	Save(ctx context.Context, cp *Checkpoint) error

	// Delete 删除线程，线程不存在时不报错
	Delete(ctx context.Context, threadID string) error

	// Close 释放后端资源
	Close() error
}

// Next 基于上一个检查点创建新版本，prev 可以为 nil
func Next(prev *Checkpoint, threadID string) *Checkpoint {
	cp := &Checkpoint{ThreadID: threadID, Version: 1}
	if prev != nil {
		cp.ParentID = prev.ID
		cp.Version = prev.Version + 1
		cp.ChatHistory = append([]types.ChatMessage(nil), prev.ChatHistory...)
	}
	return cp
}

// NewThreadID 生成新的线程标识
func NewThreadID() string { return uuid.NewString() }

// =============================================================================
// 校验与编解码
// =============================================================================

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

// ValidateThreadID 线程标识只允许字母、数字与 _ . : -，最长 128
func ValidateThreadID(threadID string) error {
	if !threadIDPattern.MatchString(threadID) {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid thread id %q", threadID)).
			WithHTTPStatus(400)
	}
	return nil
}

// ErrNotFound 构造线程不存在错误
func ErrNotFound(threadID string) error {
	return types.NewError(types.ErrThreadNotFound, fmt.Sprintf("thread %s not found", threadID)).
		WithHTTPStatus(404)
}

// IsNotFound 判断是否为线程不存在
func IsNotFound(err error) bool {
	return types.IsErrorCode(err, types.ErrThreadNotFound)
}

func storeError(op string, err error) error {
	return types.NewError(types.ErrCheckpointFailed, op).WithCause(err)
}

// prepare 校验并补齐 ID 与时间戳
func prepare(cp *Checkpoint) error {
	if cp == nil {
		return types.NewError(types.ErrInvalidRequest, "checkpoint is nil")
	}
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	return nil
}

func encode(cp *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, storeError("marshal checkpoint", err)
	}
	return data, nil
}

func decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, storeError("unmarshal checkpoint", err)
	}
	return &cp, nil
}
