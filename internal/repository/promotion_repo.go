package repository

import (
	"context"

	"opsconsole/internal/model"

	"gorm.io/gorm"
)

type PromotionRepository interface {
	Create(ctx context.Context, promotion *model.Promotion) error
	List(ctx context.Context, page, limit int) ([]model.Promotion, int64, error)
}

type promotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) Create(ctx context.Context, promotion *model.Promotion) error {
	return GetDB(ctx, r.db).Create(promotion).Error
}

func (r *promotionRepository) List(ctx context.Context, page, limit int) ([]model.Promotion, int64, error) {
	var promotions []model.Promotion
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Promotion{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&promotions).Error; err != nil {
		return nil, 0, err
	}

	return promotions, total, nil
}
