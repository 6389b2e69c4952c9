package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository persists API key records.
type Repository interface {
	Insert(ctx context.Context, key *Key) error
	FindByHash(ctx context.Context, hash string) (*Key, error)
	FindByID(ctx context.Context, id string) (*Key, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, includeRevoked bool) ([]Key, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Key{})
}

func (r *GormRepository) Insert(ctx context.Context, key *Key) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *GormRepository) FindByHash(ctx context.Context, hash string) (*Key, error) {
	var key Key
	err := r.db.WithContext(ctx).First(&key, "key_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*Key, error) {
	var key Key
	err := r.db.WithContext(ctx).First(&key, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *GormRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Key{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": at,
		}).Error
}

func (r *GormRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Key{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"revoked":    true,
			"revoked_at": at,
		}).Error
}

func (r *GormRepository) List(ctx context.Context, includeRevoked bool) ([]Key, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if !includeRevoked {
		query = query.Where("revoked = ?", false)
	}

	var keys []Key
	if err := query.Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}
