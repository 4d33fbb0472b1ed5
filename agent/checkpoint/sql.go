package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/ragflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// record 检查点表结构，每线程一行
type record struct {
	ThreadID     string `gorm:"primaryKey;size:128"`
	CheckpointID string `gorm:"size:64;not null"`
	Version      int    `gorm:"not null"`
	Payload      string `gorm:"type:text;not null"`
	UpdatedAt    time.Time
}

func (record) TableName() string { return "ragflow_checkpoints" }

// SQLStore 基于 GORM 的存储，支持 postgres、mysql、sqlite
type SQLStore struct {
	pool       *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewSQLStore 创建 SQL 存储并迁移表结构
func NewSQLStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&record{}); err != nil {
		return nil, storeError("migrate checkpoint table", err)
	}
	return &SQLStore{
		pool:       pool,
		maxRetries: 3,
		logger:     logger.With(zap.String("store", "sql_checkpoint")),
	}, nil
}

func (s *SQLStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	var rec record
	err := s.pool.DB().WithContext(ctx).Where("thread_id = ?", threadID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound(threadID)
	}
	if err != nil {
		return nil, storeError("select checkpoint", err)
	}
	return decode([]byte(rec.Payload))
}

func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := prepare(cp); err != nil {
		return err
	}
	data, err := encode(cp)
	if err != nil {
		return err
	}
	rec := record{
		ThreadID:     cp.ThreadID,
		CheckpointID: cp.ID,
		Version:      cp.Version,
		Payload:      string(data),
		UpdatedAt:    time.Now().UTC(),
	}

	err = s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"checkpoint_id", "version", "payload", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return storeError("upsert checkpoint", err)
	}

	s.logger.Debug("checkpoint saved to database",
		zap.String("thread_id", cp.ThreadID),
		zap.String("checkpoint_id", cp.ID),
		zap.Int("version", cp.Version))
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	if err := s.pool.DB().WithContext(ctx).Where("thread_id = ?", threadID).Delete(&record{}).Error; err != nil {
		return storeError("delete checkpoint", err)
	}
	return nil
}

// Close 关闭底层连接池
func (s *SQLStore) Close() error { return s.pool.Close() }
