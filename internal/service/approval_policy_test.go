package service

import (
	"testing"
	"time"

	"opsconsole/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func couponPayload(discountType model.DiscountType, value float64) model.ApprovalPayload {
	return model.ApprovalPayload{CouponCreation: &model.CouponCreationData{
		Code:         "SAVE",
		DiscountType: discountType,
		Value:        decimal.NewFromFloat(value),
		ValidFrom:    time.Now(),
		ValidUntil:   time.Now().Add(24 * time.Hour),
	}}
}

func promotionPayload(pct float64) model.ApprovalPayload {
	return model.ApprovalPayload{PromotionCreation: &model.PromotionCreationData{
		Name:               "Summer",
		DiscountPercentage: pct,
		StartsAt:           time.Now(),
		EndsAt:             time.Now().Add(48 * time.Hour),
	}}
}

func priceChangePayload(changePct float64) model.ApprovalPayload {
	return model.ApprovalPayload{PriceChange: &model.PriceChangeData{
		ProductID:        "3f0c6f3e-0000-0000-0000-000000000001",
		OldPrice:         decimal.NewFromInt(100),
		NewPrice:         decimal.NewFromFloat(100 + changePct),
		ChangePercentage: changePct,
	}}
}

func bulkDiscountPayload(pct float64, count int) model.ApprovalPayload {
	return model.ApprovalPayload{BulkDiscount: &model.BulkDiscountData{
		DiscountPercentage: pct,
		ProductCount:       count,
	}}
}

func flashSalePayload(pct float64) model.ApprovalPayload {
	return model.ApprovalPayload{FlashSale: &model.FlashSaleData{
		Name:               "Midnight",
		DiscountPercentage: pct,
		StartsAt:           time.Now(),
		DurationHours:      4,
	}}
}

func TestCanAutoApprove(t *testing.T) {
	registry := DefaultThresholdRegistry()

	tests := []struct {
		name        string
		requestType model.RequestType
		payload     model.ApprovalPayload
		want        bool
	}{
		{"coupon percentage under ceiling", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 10), true},
		{"coupon percentage at ceiling", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 20), true},
		{"coupon percentage above ceiling", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 20.01), false},
		{"coupon fixed at ceiling", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypeFixed, 50), true},
		{"coupon fixed above ceiling", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypeFixed, 50.5), false},
		{"promotion at ceiling", model.RequestTypePromotionCreation, promotionPayload(15), true},
		{"promotion above ceiling", model.RequestTypePromotionCreation, promotionPayload(15.1), false},
		{"price increase within bound", model.RequestTypePriceChange, priceChangePayload(8), true},
		{"price increase at bound", model.RequestTypePriceChange, priceChangePayload(10), true},
		{"price decrease within bound", model.RequestTypePriceChange, priceChangePayload(-10), true},
		{"price decrease beyond bound", model.RequestTypePriceChange, priceChangePayload(-12), false},
		{"price increase beyond bound", model.RequestTypePriceChange, priceChangePayload(40), false},
		{"bulk discount within both limits", model.RequestTypeBulkDiscount, bulkDiscountPayload(10, 25), true},
		{"bulk discount too many products", model.RequestTypeBulkDiscount, bulkDiscountPayload(10, 26), false},
		{"bulk discount percentage too high", model.RequestTypeBulkDiscount, bulkDiscountPayload(11, 5), false},
		{"flash sale never auto-approves", model.RequestTypeFlashSale, flashSalePayload(5), false},
		{"mismatched payload member", model.RequestTypeCouponCreation, priceChangePayload(5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.CanAutoApprove(tt.requestType, tt.payload))
		})
	}
}

func TestCanAutoApproveUnconfiguredType(t *testing.T) {
	registry := NewThresholdRegistry(map[model.RequestType]ThresholdRule{})

	assert.False(t, registry.CanAutoApprove(model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 1)))
}

func TestExpiresAt(t *testing.T) {
	registry := DefaultThresholdRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		requestType model.RequestType
		hours       int
	}{
		{model.RequestTypeCouponCreation, 72},
		{model.RequestTypePromotionCreation, 72},
		{model.RequestTypePriceChange, 48},
		{model.RequestTypeBulkDiscount, 48},
		{model.RequestTypeFlashSale, 24},
	}

	for _, tt := range tests {
		t.Run(string(tt.requestType), func(t *testing.T) {
			deadline := registry.ExpiresAt(tt.requestType, now)
			require.NotNil(t, deadline)
			assert.Equal(t, now.Add(time.Duration(tt.hours)*time.Hour), *deadline)
		})
	}

	assert.Nil(t, registry.ExpiresAt("UNKNOWN_TYPE", now))
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		name        string
		requestType model.RequestType
		payload     model.ApprovalPayload
		want        model.RequestPriority
	}{
		{"flash sale is always urgent", model.RequestTypeFlashSale, flashSalePayload(5), model.PriorityUrgent},
		{"deep coupon percentage", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 35), model.PriorityHigh},
		{"coupon percentage at boundary", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypePercentage, 30), model.PriorityNormal},
		{"fixed coupons never escalate", model.RequestTypeCouponCreation, couponPayload(model.DiscountTypeFixed, 500), model.PriorityNormal},
		{"large price swing", model.RequestTypePriceChange, priceChangePayload(30), model.PriorityHigh},
		{"large negative price swing", model.RequestTypePriceChange, priceChangePayload(-30), model.PriorityHigh},
		{"small price change", model.RequestTypePriceChange, priceChangePayload(8), model.PriorityNormal},
		{"bulk discount over many products", model.RequestTypeBulkDiscount, bulkDiscountPayload(5, 60), model.PriorityHigh},
		{"deep bulk discount", model.RequestTypeBulkDiscount, bulkDiscountPayload(25, 5), model.PriorityHigh},
		{"modest bulk discount", model.RequestTypeBulkDiscount, bulkDiscountPayload(10, 10), model.PriorityNormal},
		{"promotions stay normal", model.RequestTypePromotionCreation, promotionPayload(40), model.PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityFor(tt.requestType, tt.payload)
			assert.Equal(t, tt.want, got)
			// Deterministic: repeated evaluation of the same input agrees.
			assert.Equal(t, got, PriorityFor(tt.requestType, tt.payload))
		})
	}
}
