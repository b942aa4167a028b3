package service

import (
	"context"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
)

// --- DTOs ---

type CouponResponse struct {
	ID           string             `json:"id"`
	Code         string             `json:"code"`
	DiscountType model.DiscountType `json:"discount_type"`
	Value        string             `json:"value"`
	ValidFrom    string             `json:"valid_from"`
	ValidUntil   string             `json:"valid_until"`
	Description  string             `json:"description,omitempty"`
}

type PromotionResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	DiscountPercentage float64 `json:"discount_percentage"`
	StartsAt           string  `json:"starts_at"`
	EndsAt             string  `json:"ends_at"`
	FlashSale          bool    `json:"flash_sale"`
}

type ProductResponse struct {
	ID                 string  `json:"id"`
	SKU                string  `json:"sku"`
	Name               string  `json:"name"`
	Price              string  `json:"price"`
	DiscountPercentage float64 `json:"discount_percentage"`
	CurrentStock       int     `json:"current_stock"`
}

// --- Interface ---

// CatalogService serves the read-only console lists; all catalog mutations go
// through the approval workflow and its action executor.
type CatalogService interface {
	ListCoupons(ctx context.Context, page, limit int) ([]CouponResponse, int64, error)
	ListPromotions(ctx context.Context, page, limit int) ([]PromotionResponse, int64, error)
	ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
}

type catalogService struct {
	coupons    repository.CouponRepository
	promotions repository.PromotionRepository
	products   repository.ProductRepository
}

func NewCatalogService(
	coupons repository.CouponRepository,
	promotions repository.PromotionRepository,
	products repository.ProductRepository,
) CatalogService {
	return &catalogService{coupons: coupons, promotions: promotions, products: products}
}

// --- Implementation ---

func (s *catalogService) ListCoupons(ctx context.Context, page, limit int) ([]CouponResponse, int64, error) {
	coupons, total, err := s.coupons.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]CouponResponse, 0, len(coupons))
	for _, c := range coupons {
		res = append(res, CouponResponse{
			ID:           c.ID.String(),
			Code:         c.Code,
			DiscountType: c.DiscountType,
			Value:        c.Value.StringFixed(2),
			ValidFrom:    c.ValidFrom.Format(time.RFC3339),
			ValidUntil:   c.ValidUntil.Format(time.RFC3339),
			Description:  c.Description,
		})
	}
	return res, total, nil
}

func (s *catalogService) ListPromotions(ctx context.Context, page, limit int) ([]PromotionResponse, int64, error) {
	promotions, total, err := s.promotions.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]PromotionResponse, 0, len(promotions))
	for _, p := range promotions {
		res = append(res, PromotionResponse{
			ID:                 p.ID.String(),
			Name:               p.Name,
			DiscountPercentage: p.DiscountPercentage,
			StartsAt:           p.StartsAt.Format(time.RFC3339),
			EndsAt:             p.EndsAt.Format(time.RFC3339),
			FlashSale:          p.FlashSale,
		})
	}
	return res, total, nil
}

func (s *catalogService) ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	products, total, err := s.products.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, ProductResponse{
			ID:                 p.ID.String(),
			SKU:                p.SKU,
			Name:               p.Name,
			Price:              p.Price.StringFixed(2),
			DiscountPercentage: p.DiscountPercentage,
			CurrentStock:       p.CurrentStock,
		})
	}
	return res, total, nil
}
