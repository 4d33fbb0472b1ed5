package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore 每线程一个 JSON 文件：<baseDir>/<thread_id>.json
type FileStore struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewFileStore 创建文件存储，目录不存在时创建
func NewFileStore(baseDir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseDir == "" {
		return nil, fmt.Errorf("checkpoint base dir is empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, storeError("create checkpoint dir", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger.With(zap.String("store", "file_checkpoint")),
	}, nil
}

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.baseDir, threadID+".json")
}

func (s *FileStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound(threadID)
	}
	if err != nil {
		return nil, storeError("read checkpoint", err)
	}
	return decode(data)
}

// Save 先写临时文件再 rename，读者不会看到半个文件
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(cp); err != nil {
		return err
	}
	data, err := encode(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, cp.ThreadID+".*.tmp")
	if err != nil {
		return storeError("create temp checkpoint", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storeError("write checkpoint", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storeError("close checkpoint", err)
	}
	if err := os.Rename(tmpName, s.path(cp.ThreadID)); err != nil {
		os.Remove(tmpName)
		return storeError("rename checkpoint", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", cp.ThreadID),
		zap.String("checkpoint_id", cp.ID),
		zap.Int("version", cp.Version))
	return nil
}

func (s *FileStore) Delete(_ context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(threadID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storeError("delete checkpoint", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
