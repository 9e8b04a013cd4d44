package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/types"
)

type TenantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error)
	GetByID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error)
}

type tenantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTenantRepo(db *gorm.DB, baseLog *logger.Logger) TenantRepo {
	repoLog := baseLog.With("repo", "TenantRepo")
	return &tenantRepo{db: db, log: repoLog}
}

func (tr *tenantRepo) Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if len(tenants) == 0 {
		return []*types.Tenant{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tenants).Error; err != nil {
		return nil, err
	}

	return tenants, nil
}

func (tr *tenantRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Tenant
	if err := transaction.WithContext(ctx).
		Where("id = ?", tenantID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
