package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		status    RequestStatus
		expiresAt *time.Time
		want      RequestStatus
	}{
		{"pending before deadline", StatusPending, &future, StatusPending},
		{"pending past deadline", StatusPending, &past, StatusExpired},
		{"pending exactly at deadline", StatusPending, &now, StatusExpired},
		{"pending without deadline", StatusPending, nil, StatusPending},
		{"approved is unaffected by deadline", StatusApproved, &past, StatusApproved},
		{"rejected is unaffected by deadline", StatusRejected, &past, StatusRejected},
		{"cancelled is unaffected by deadline", StatusCancelled, &past, StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ApprovalRequest{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, req.EffectiveStatus(now))
			assert.Equal(t, tt.want == StatusExpired && tt.status == StatusPending, req.ExpiredBy(now))
		})
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	for _, s := range []RequestStatus{StatusApproved, StatusRejected, StatusCancelled, StatusExpired} {
		assert.True(t, s.Terminal(), string(s))
	}
}

func TestApprovalPayloadValidate(t *testing.T) {
	coupon := &CouponCreationData{
		Code:         "WELCOME10",
		DiscountType: DiscountTypePercentage,
		Value:        decimal.NewFromInt(10),
	}
	priceChange := &PriceChangeData{
		ProductID:        "p-1",
		OldPrice:         decimal.NewFromInt(100),
		NewPrice:         decimal.NewFromInt(90),
		ChangePercentage: -10,
	}

	t.Run("matching member", func(t *testing.T) {
		p := ApprovalPayload{CouponCreation: coupon}
		require.NoError(t, p.Validate(RequestTypeCouponCreation))
	})

	t.Run("empty payload", func(t *testing.T) {
		assert.Error(t, ApprovalPayload{}.Validate(RequestTypeCouponCreation))
	})

	t.Run("two members set", func(t *testing.T) {
		p := ApprovalPayload{CouponCreation: coupon, PriceChange: priceChange}
		assert.Error(t, p.Validate(RequestTypeCouponCreation))
	})

	t.Run("member does not match type", func(t *testing.T) {
		p := ApprovalPayload{PriceChange: priceChange}
		assert.Error(t, p.Validate(RequestTypeCouponCreation))
	})

	t.Run("unknown request type", func(t *testing.T) {
		p := ApprovalPayload{CouponCreation: coupon}
		assert.Error(t, p.Validate("GIFT_CARD_CREATION"))
	})
}

func TestSnapshotUser(t *testing.T) {
	u := &User{Username: "lan.tran", Email: "lan@example.com", Role: "manager"}
	snap := SnapshotUser(u)

	assert.Equal(t, u.ID.String(), snap.UID)
	assert.Equal(t, "lan.tran", snap.Username)
	assert.Equal(t, "manager", snap.Role)
	assert.False(t, snap.IsZero())
	assert.True(t, UserSnapshot{}.IsZero())
}
