package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents an item in the catalog. Price and DiscountPercentage are
// mutated only by the approval action executor.
type Product struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU                string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	Price              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	DiscountPercentage float64         `gorm:"type:decimal(5,2);default:0" json:"discount_percentage"`
	CurrentStock       int             `gorm:"type:int;default:0;not null" json:"current_stock"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

// Coupon is created by the action executor once a COUPON_CREATION request is approved.
type Coupon struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code              string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	DiscountType      DiscountType    `gorm:"type:varchar(20);not null" json:"discount_type"`
	Value             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"value"`
	ValidFrom         time.Time       `gorm:"not null" json:"valid_from"`
	ValidUntil        time.Time       `gorm:"not null" json:"valid_until"`
	Description       string          `gorm:"type:text" json:"description"`
	ApprovalRequestID *uuid.UUID      `gorm:"type:uuid;index" json:"approval_request_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Promotion is created by the action executor for approved PROMOTION_CREATION
// and FLASH_SALE requests. Flash sales carry a fixed-duration window.
type Promotion struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name               string     `gorm:"type:varchar(255);not null" json:"name"`
	DiscountPercentage float64    `gorm:"type:decimal(5,2);not null" json:"discount_percentage"`
	StartsAt           time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt             time.Time  `gorm:"not null" json:"ends_at"`
	FlashSale          bool       `gorm:"not null;default:false" json:"flash_sale"`
	ApprovalRequestID  *uuid.UUID `gorm:"type:uuid;index" json:"approval_request_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
