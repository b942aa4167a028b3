package service

import (
	"math"
	"time"

	"opsconsole/internal/model"

	"github.com/shopspring/decimal"
)

// AutoApproveLimits carries the numeric ceilings under which a request may
// skip human review. All comparisons are inclusive: a value equal to its
// ceiling still auto-approves. A nil limit means the dimension is unbounded.
type AutoApproveLimits struct {
	MaxDiscountPercentage *decimal.Decimal
	MaxFixedAmount        *decimal.Decimal
	MaxChangePercentage   *float64
	MaxProductCount       *int
}

// ThresholdRule is the per-request-type configuration entry.
type ThresholdRule struct {
	AutoApprove         *AutoApproveLimits // nil means no auto-approval possible
	RequiresApproval    bool
	ExpirationHours     int // 0 means pending requests never expire
	NotifyOnAutoApprove bool
}

// ThresholdRegistry is read-only configuration mapping a request type to its
// auto-approval conditions, expiration window and notification policy. It may
// be swapped wholesale but is never mutated by the workflow engine.
type ThresholdRegistry struct {
	rules map[model.RequestType]ThresholdRule
}

func NewThresholdRegistry(rules map[model.RequestType]ThresholdRule) *ThresholdRegistry {
	return &ThresholdRegistry{rules: rules}
}

// DefaultThresholdRegistry returns the stock configuration for the console.
func DefaultThresholdRegistry() *ThresholdRegistry {
	pct := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	return NewThresholdRegistry(map[model.RequestType]ThresholdRule{
		model.RequestTypeCouponCreation: {
			AutoApprove: &AutoApproveLimits{
				MaxDiscountPercentage: pct(20),
				MaxFixedAmount:        pct(50),
			},
			RequiresApproval:    true,
			ExpirationHours:     72,
			NotifyOnAutoApprove: true,
		},
		model.RequestTypePromotionCreation: {
			AutoApprove: &AutoApproveLimits{
				MaxDiscountPercentage: pct(15),
			},
			RequiresApproval:    true,
			ExpirationHours:     72,
			NotifyOnAutoApprove: true,
		},
		model.RequestTypePriceChange: {
			AutoApprove: &AutoApproveLimits{
				MaxChangePercentage: f(10),
			},
			RequiresApproval:    true,
			ExpirationHours:     48,
			NotifyOnAutoApprove: false,
		},
		model.RequestTypeBulkDiscount: {
			AutoApprove: &AutoApproveLimits{
				MaxDiscountPercentage: pct(10),
				MaxProductCount:       n(25),
			},
			RequiresApproval:    true,
			ExpirationHours:     48,
			NotifyOnAutoApprove: true,
		},
		model.RequestTypeFlashSale: {
			// Flash sales always go through review; no limits configured.
			RequiresApproval: true,
			ExpirationHours:  24,
		},
	})
}

// Rule returns the configuration entry for a request type.
func (r *ThresholdRegistry) Rule(t model.RequestType) (ThresholdRule, bool) {
	rule, ok := r.rules[t]
	return rule, ok
}

// ExpiresAt computes the pending-request deadline for a type, or nil when no
// expiration window is configured.
func (r *ThresholdRegistry) ExpiresAt(t model.RequestType, now time.Time) *time.Time {
	rule, ok := r.rules[t]
	if !ok || rule.ExpirationHours <= 0 {
		return nil
	}
	deadline := now.Add(time.Duration(rule.ExpirationHours) * time.Hour)
	return &deadline
}

// CanAutoApprove reports whether the proposed change is within the configured
// ceilings for its type. A type absent from the registry, or configured
// without limits, never auto-approves. FLASH_SALE always requires review
// regardless of configuration.
func (r *ThresholdRegistry) CanAutoApprove(t model.RequestType, payload model.ApprovalPayload) bool {
	if t == model.RequestTypeFlashSale {
		return false
	}

	rule, ok := r.rules[t]
	if !ok || rule.AutoApprove == nil {
		return false
	}
	limits := rule.AutoApprove

	switch t {
	case model.RequestTypeCouponCreation:
		data := payload.CouponCreation
		if data == nil {
			return false
		}
		switch data.DiscountType {
		case model.DiscountTypePercentage:
			return limits.MaxDiscountPercentage != nil &&
				data.Value.LessThanOrEqual(*limits.MaxDiscountPercentage)
		case model.DiscountTypeFixed:
			return limits.MaxFixedAmount != nil &&
				data.Value.LessThanOrEqual(*limits.MaxFixedAmount)
		default:
			return false
		}

	case model.RequestTypePromotionCreation:
		data := payload.PromotionCreation
		if data == nil || limits.MaxDiscountPercentage == nil {
			return false
		}
		return decimal.NewFromFloat(data.DiscountPercentage).LessThanOrEqual(*limits.MaxDiscountPercentage)

	case model.RequestTypePriceChange:
		data := payload.PriceChange
		if data == nil || limits.MaxChangePercentage == nil {
			return false
		}
		return math.Abs(data.ChangePercentage) <= *limits.MaxChangePercentage

	case model.RequestTypeBulkDiscount:
		data := payload.BulkDiscount
		if data == nil || limits.MaxDiscountPercentage == nil {
			return false
		}
		if !decimal.NewFromFloat(data.DiscountPercentage).LessThanOrEqual(*limits.MaxDiscountPercentage) {
			return false
		}
		return limits.MaxProductCount == nil || data.ProductCount <= *limits.MaxProductCount

	default:
		return false
	}
}

// PriorityFor derives the urgency tier of a request from its type and payload.
// Pure and deterministic; computed once at creation and never recomputed.
func PriorityFor(t model.RequestType, payload model.ApprovalPayload) model.RequestPriority {
	switch t {
	case model.RequestTypeFlashSale:
		return model.PriorityUrgent

	case model.RequestTypeCouponCreation:
		data := payload.CouponCreation
		if data != nil && data.DiscountType == model.DiscountTypePercentage &&
			data.Value.GreaterThan(decimal.NewFromInt(30)) {
			return model.PriorityHigh
		}
		return model.PriorityNormal

	case model.RequestTypePriceChange:
		data := payload.PriceChange
		if data != nil && math.Abs(data.ChangePercentage) > 25 {
			return model.PriorityHigh
		}
		return model.PriorityNormal

	case model.RequestTypeBulkDiscount:
		data := payload.BulkDiscount
		if data != nil && (data.ProductCount > 50 || data.DiscountPercentage > 20) {
			return model.PriorityHigh
		}
		return model.PriorityNormal

	default:
		return model.PriorityNormal
	}
}
