package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/types"
)

type ResponseFailureRepo interface {
	Create(ctx context.Context, tx *gorm.DB, failures []*types.ResponseFailure) ([]*types.ResponseFailure, error)
	RecentFailedSenders(ctx context.Context, tx *gorm.DB, since time.Time) ([]string, error)
}

type responseFailureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseFailureRepo(db *gorm.DB, baseLog *logger.Logger) ResponseFailureRepo {
	repoLog := baseLog.With("repo", "ResponseFailureRepo")
	return &responseFailureRepo{db: db, log: repoLog}
}

func (fr *responseFailureRepo) Create(ctx context.Context, tx *gorm.DB, failures []*types.ResponseFailure) ([]*types.ResponseFailure, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	if len(failures) == 0 {
		return []*types.ResponseFailure{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&failures).Error; err != nil {
		return nil, err
	}

	return failures, nil
}

// RecentFailedSenders feeds the sweep's cool-down exclusion: a sender that
// failed inside the window is skipped by the poll fallback so a broken
// channel cannot hot-loop.
func (fr *responseFailureRepo) RecentFailedSenders(ctx context.Context, tx *gorm.DB, since time.Time) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var senders []string
	if err := transaction.WithContext(ctx).Model(&types.ResponseFailure{}).
		Distinct("sender").
		Where("created_at >= ?", since).
		Pluck("sender", &senders).Error; err != nil {
		return nil, err
	}
	return senders, nil
}
