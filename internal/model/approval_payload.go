package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType distinguishes percentage-based from fixed-amount discounts.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// CouponCreationData is the payload of a COUPON_CREATION request.
type CouponCreationData struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	ValidFrom    time.Time       `json:"validFrom"`
	ValidUntil   time.Time       `json:"validUntil"`
	Description  string          `json:"description,omitempty"`
}

// PromotionCreationData is the payload of a PROMOTION_CREATION request.
type PromotionCreationData struct {
	Name               string    `json:"name"`
	DiscountPercentage float64   `json:"discountPercentage"`
	StartsAt           time.Time `json:"startsAt"`
	EndsAt             time.Time `json:"endsAt"`
	ProductIDs         []string  `json:"productIds,omitempty"`
}

// PriceChangeData is the payload of a PRICE_CHANGE request.
type PriceChangeData struct {
	ProductID        string          `json:"productId"`
	OldPrice         decimal.Decimal `json:"oldPrice"`
	NewPrice         decimal.Decimal `json:"newPrice"`
	ChangePercentage float64         `json:"changePercentage"`
}

// BulkDiscountData is the payload of a BULK_DISCOUNT request.
type BulkDiscountData struct {
	DiscountPercentage float64  `json:"discountPercentage"`
	ProductCount       int      `json:"productCount"`
	ProductIDs         []string `json:"productIds"`
}

// FlashSaleData is the payload of a FLASH_SALE request.
type FlashSaleData struct {
	Name               string    `json:"name"`
	DiscountPercentage float64   `json:"discountPercentage"`
	StartsAt           time.Time `json:"startsAt"`
	DurationHours      int       `json:"durationHours"`
	ProductIDs         []string  `json:"productIds,omitempty"`
}

// ApprovalPayload is the type-tagged union carried by an approval request.
// Exactly one member is set, and it must match the request's RequestType.
// The workflow engine treats it as opaque except for the numeric fields the
// threshold policy and priority calculator inspect.
type ApprovalPayload struct {
	CouponCreation    *CouponCreationData    `json:"couponCreation,omitempty"`
	PromotionCreation *PromotionCreationData `json:"promotionCreation,omitempty"`
	PriceChange       *PriceChangeData       `json:"priceChange,omitempty"`
	BulkDiscount      *BulkDiscountData      `json:"bulkDiscount,omitempty"`
	FlashSale         *FlashSaleData         `json:"flashSale,omitempty"`
}

func (p ApprovalPayload) setMembers() int {
	count := 0
	if p.CouponCreation != nil {
		count++
	}
	if p.PromotionCreation != nil {
		count++
	}
	if p.PriceChange != nil {
		count++
	}
	if p.BulkDiscount != nil {
		count++
	}
	if p.FlashSale != nil {
		count++
	}
	return count
}

// Validate checks that exactly one payload member is set and that it matches
// the given request type.
func (p ApprovalPayload) Validate(requestType RequestType) error {
	if p.setMembers() != 1 {
		return fmt.Errorf("payload must carry exactly one member")
	}

	var ok bool
	switch requestType {
	case RequestTypeCouponCreation:
		ok = p.CouponCreation != nil
	case RequestTypePromotionCreation:
		ok = p.PromotionCreation != nil
	case RequestTypePriceChange:
		ok = p.PriceChange != nil
	case RequestTypeBulkDiscount:
		ok = p.BulkDiscount != nil
	case RequestTypeFlashSale:
		ok = p.FlashSale != nil
	default:
		return fmt.Errorf("unknown request type: %s", requestType)
	}

	if !ok {
		return fmt.Errorf("payload does not match request type %s", requestType)
	}
	return nil
}
