package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储。保存编码后的字节，调用方拿到的总是独立副本。
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound(threadID)
	}
	return decode(data)
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
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
	s.threads[cp.ThreadID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	return nil
}

// Len 返回线程数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *MemoryStore) Close() error { return nil }
