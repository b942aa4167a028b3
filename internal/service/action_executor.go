package service

import (
	"context"
	"fmt"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionExecutor performs the real business effect of an approved request.
// The workflow engine calls it only after the APPROVED status is persisted;
// a failure here is surfaced to the caller but never reverts the decision.
type ActionExecutor interface {
	Execute(ctx context.Context, req *model.ApprovalRequest) error
}

type catalogExecutor struct {
	coupons    repository.CouponRepository
	promotions repository.PromotionRepository
	products   repository.ProductRepository
	logger     *zap.Logger
}

// NewCatalogExecutor returns the executor backing the console's request
// types: coupon/promotion creation and product price/discount updates.
func NewCatalogExecutor(
	coupons repository.CouponRepository,
	promotions repository.PromotionRepository,
	products repository.ProductRepository,
	logger *zap.Logger,
) ActionExecutor {
	return &catalogExecutor{
		coupons:    coupons,
		promotions: promotions,
		products:   products,
		logger:     logger,
	}
}

func (e *catalogExecutor) Execute(ctx context.Context, req *model.ApprovalRequest) error {
	switch req.RequestType {
	case model.RequestTypeCouponCreation:
		return e.createCoupon(ctx, req)
	case model.RequestTypePromotionCreation:
		return e.createPromotion(ctx, req)
	case model.RequestTypeFlashSale:
		return e.createFlashSale(ctx, req)
	case model.RequestTypePriceChange:
		return e.changePrice(ctx, req)
	case model.RequestTypeBulkDiscount:
		return e.applyBulkDiscount(ctx, req)
	default:
		return fmt.Errorf("unknown request type: %s", req.RequestType)
	}
}

func (e *catalogExecutor) createCoupon(ctx context.Context, req *model.ApprovalRequest) error {
	data := req.Payload.CouponCreation
	if data == nil {
		return fmt.Errorf("missing coupon payload on request %s", req.ID)
	}

	coupon := &model.Coupon{
		Code:              data.Code,
		DiscountType:      data.DiscountType,
		Value:             data.Value,
		ValidFrom:         data.ValidFrom,
		ValidUntil:        data.ValidUntil,
		Description:       data.Description,
		ApprovalRequestID: &req.ID,
	}
	if err := e.coupons.Create(ctx, coupon); err != nil {
		return fmt.Errorf("failed to create coupon %s: %w", data.Code, err)
	}

	e.logger.Info("coupon created",
		zap.String("code", data.Code),
		zap.String("approval_request_id", req.ID.String()))
	return nil
}

func (e *catalogExecutor) createPromotion(ctx context.Context, req *model.ApprovalRequest) error {
	data := req.Payload.PromotionCreation
	if data == nil {
		return fmt.Errorf("missing promotion payload on request %s", req.ID)
	}

	promotion := &model.Promotion{
		Name:               data.Name,
		DiscountPercentage: data.DiscountPercentage,
		StartsAt:           data.StartsAt,
		EndsAt:             data.EndsAt,
		ApprovalRequestID:  &req.ID,
	}
	if err := e.promotions.Create(ctx, promotion); err != nil {
		return fmt.Errorf("failed to create promotion %q: %w", data.Name, err)
	}
	return nil
}

func (e *catalogExecutor) createFlashSale(ctx context.Context, req *model.ApprovalRequest) error {
	data := req.Payload.FlashSale
	if data == nil {
		return fmt.Errorf("missing flash sale payload on request %s", req.ID)
	}

	promotion := &model.Promotion{
		Name:               data.Name,
		DiscountPercentage: data.DiscountPercentage,
		StartsAt:           data.StartsAt,
		EndsAt:             data.StartsAt.Add(time.Duration(data.DurationHours) * time.Hour),
		FlashSale:          true,
		ApprovalRequestID:  &req.ID,
	}
	if err := e.promotions.Create(ctx, promotion); err != nil {
		return fmt.Errorf("failed to create flash sale %q: %w", data.Name, err)
	}
	return nil
}

func (e *catalogExecutor) changePrice(ctx context.Context, req *model.ApprovalRequest) error {
	data := req.Payload.PriceChange
	if data == nil {
		return fmt.Errorf("missing price change payload on request %s", req.ID)
	}

	productID, err := uuid.Parse(data.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product id %q: %w", data.ProductID, err)
	}
	if err := e.products.UpdatePrice(ctx, productID, data.NewPrice); err != nil {
		return fmt.Errorf("failed to update price for product %s: %w", productID, err)
	}

	e.logger.Info("product price changed",
		zap.String("product_id", data.ProductID),
		zap.String("old_price", data.OldPrice.String()),
		zap.String("new_price", data.NewPrice.String()))
	return nil
}

func (e *catalogExecutor) applyBulkDiscount(ctx context.Context, req *model.ApprovalRequest) error {
	data := req.Payload.BulkDiscount
	if data == nil {
		return fmt.Errorf("missing bulk discount payload on request %s", req.ID)
	}

	ids := make([]uuid.UUID, 0, len(data.ProductIDs))
	for _, raw := range data.ProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid product id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return fmt.Errorf("bulk discount request %s has no products", req.ID)
	}

	if err := e.products.ApplyDiscount(ctx, ids, data.DiscountPercentage); err != nil {
		return fmt.Errorf("failed to apply bulk discount: %w", err)
	}
	return nil
}
