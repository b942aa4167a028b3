package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestType enumerates the business actions that go through the approval workflow.
type RequestType string

const (
	RequestTypeCouponCreation    RequestType = "COUPON_CREATION"
	RequestTypePromotionCreation RequestType = "PROMOTION_CREATION"
	RequestTypePriceChange       RequestType = "PRICE_CHANGE"
	RequestTypeBulkDiscount      RequestType = "BULK_DISCOUNT"
	RequestTypeFlashSale         RequestType = "FLASH_SALE"
)

// RequestStatus enumerates the lifecycle states of an approval request.
// PENDING transitions exactly once into one of the terminal states.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
	StatusExpired   RequestStatus = "EXPIRED"
)

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled || s == StatusExpired
}

// RequestPriority is the urgency tier computed once at creation.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "LOW"
	PriorityNormal RequestPriority = "NORMAL"
	PriorityHigh   RequestPriority = "HIGH"
	PriorityUrgent RequestPriority = "URGENT"
)

// UserSnapshot is a denormalized copy of the acting user embedded into the
// request record, so the audit trail stays readable even if the account is
// later changed or deleted. It is a value, not a relation.
type UserSnapshot struct {
	UID      string `gorm:"type:varchar(36)" json:"uid"`
	Username string `gorm:"type:varchar(255)" json:"username"`
	Email    string `gorm:"type:varchar(255)" json:"email"`
	Role     string `gorm:"type:varchar(50)" json:"role"`
}

// IsZero reports whether the snapshot carries no user.
func (u UserSnapshot) IsZero() bool {
	return u.UID == ""
}

// SnapshotUser copies the identity fields of a user account into a snapshot.
func SnapshotUser(u *User) UserSnapshot {
	return UserSnapshot{
		UID:      u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// ApprovalRequest is a proposed business action tracked through the approval
// workflow. Status is mutated only by the workflow engine, exactly once.
type ApprovalRequest struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestType     RequestType     `gorm:"type:varchar(30);not null;index" json:"request_type"`
	Status          RequestStatus   `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Payload         ApprovalPayload `gorm:"type:jsonb;serializer:json;not null" json:"payload"`
	Priority        RequestPriority `gorm:"type:varchar(10);not null" json:"priority"`
	RequestedBy     UserSnapshot    `gorm:"embedded;embeddedPrefix:requested_by_" json:"requested_by"`
	ReviewedBy      UserSnapshot    `gorm:"embedded;embeddedPrefix:reviewed_by_" json:"reviewed_by"`
	RequestedAt     time.Time       `gorm:"not null;index" json:"requested_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at"`
	ExpiresAt       *time.Time      `gorm:"index" json:"expires_at"`
	AutoApproved    bool            `gorm:"not null;default:false" json:"auto_approved"`
	Notes           string          `gorm:"type:text" json:"notes"`
	ReviewerNotes   string          `gorm:"type:text" json:"reviewer_notes"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExpiredBy reports whether the request is overdue at the given instant:
// still PENDING in storage with an elapsed deadline. The deadline itself
// counts as elapsed.
func (r *ApprovalRequest) ExpiredBy(now time.Time) bool {
	return r.Status == StatusPending && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// EffectiveStatus derives the status readers must observe. A PENDING request
// whose deadline has passed is logically EXPIRED even before any write
// reflects it.
func (r *ApprovalRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.ExpiredBy(now) {
		return StatusExpired
	}
	return r.Status
}
