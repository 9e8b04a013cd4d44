package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error)
	GetByPlatformID(ctx context.Context, tx *gorm.DB, platformID string) (*types.Message, error)
	ListRecentInbound(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, sender string, since time.Time) ([]*types.Message, error)
	ListUnresponded(ctx context.Context, tx *gorm.DB, limit int, excludeSenders []string) ([]*types.Message, error)
	MarkResponded(ctx context.Context, tx *gorm.DB, platformIDs []string, responseID string) error
	MarkFailed(ctx context.Context, tx *gorm.DB, platformIDs []string) error
	ResetStaleFailures(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	repoLog := baseLog.With("repo", "MessageRepo")
	return &messageRepo{db: db, log: repoLog}
}

func (mr *messageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(messages) == 0 {
		return []*types.Message{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&messages).Error; err != nil {
		return nil, err
	}

	return messages, nil
}

func (mr *messageRepo) GetByPlatformID(ctx context.Context, tx *gorm.DB, platformID string) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.Message
	if err := transaction.WithContext(ctx).
		Where("platform_message_id = ?", platformID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRecentInbound returns the trailing-window burst for one sender,
// ordered by receipt time ascending. That ordering is the only ordering
// contract a response unit carries.
func (mr *messageRepo) ListRecentInbound(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, sender string, since time.Time) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.Message
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND sender = ? AND direction = ? AND received_at >= ?",
			tenantID, sender, types.DirectionInbound, since).
		Order("received_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *messageRepo) ListUnresponded(ctx context.Context, tx *gorm.DB, limit int, excludeSenders []string) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	query := transaction.WithContext(ctx).
		Where("direction = ? AND auto_response_sent IS NULL", types.DirectionInbound)
	if len(excludeSenders) > 0 {
		query = query.Where("sender NOT IN ?", excludeSenders)
	}

	var results []*types.Message
	if err := query.Order("received_at ASC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MarkResponded updates every row of a response unit in one transaction.
// A unit is never left half-marked.
func (mr *messageRepo) MarkResponded(ctx context.Context, tx *gorm.DB, platformIDs []string, responseID string) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(platformIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sent := true
	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		return inner.Model(&types.Message{}).
			Where("platform_message_id IN ?", platformIDs).
			Updates(map[string]interface{}{
				"auto_response_sent": sent,
				"response_id":        responseID,
				"responded_at":       now,
			}).Error
	})
}

func (mr *messageRepo) MarkFailed(ctx context.Context, tx *gorm.DB, platformIDs []string) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(platformIDs) == 0 {
		return nil
	}

	failed := false
	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		return inner.Model(&types.Message{}).
			Where("platform_message_id IN ?", platformIDs).
			Updates(map[string]interface{}{
				"auto_response_sent": failed,
				"response_id":        nil,
			}).Error
	})
}

// ResetStaleFailures flips auto_response_sent=false rows older than the
// cool-down back to unset so the poll fallback can pick them up again.
func (mr *messageRepo) ResetStaleFailures(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	result := transaction.WithContext(ctx).Model(&types.Message{}).
		Where("auto_response_sent = ? AND updated_at < ?", false, olderThan).
		Update("auto_response_sent", nil)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
