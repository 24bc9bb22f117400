// Package domain contains the subscription record owned by each
// application user and the processed-event ledger that guards it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents the entitlement state of a user's subscription.
type Status string

const (
	StatusNone     Status = "none"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// SubscriptionRecord is the per-user subscription state. It is created by
// the first successful checkout and never physically deleted.
type SubscriptionRecord struct {
	ID                     snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID                 string       `json:"user_id" gorm:"size:191;not null;uniqueIndex"`
	Status                 Status       `json:"status" gorm:"size:191;not null"`
	PlanID                 string       `json:"plan_id" gorm:"size:191"`
	BillingCycle           string       `json:"billing_cycle" gorm:"size:191"`
	CurrentPeriodEnd       *time.Time   `json:"current_period_end"`
	CancelAtPeriodEnd      bool         `json:"cancel_at_period_end" gorm:"not null;default:false"`
	ProviderCustomerID     string       `json:"provider_customer_id" gorm:"size:191;index"`
	ProviderSubscriptionID string       `json:"provider_subscription_id" gorm:"size:191;index"`
	Amount                 int64        `json:"amount"`
	Currency               string       `json:"currency" gorm:"size:191"`
	LastEventID            string       `json:"last_event_id" gorm:"size:191;not null"`
	LastEventAt            time.Time    `json:"last_event_at" gorm:"not null"`
	Version                int64        `json:"version" gorm:"not null;default:0"`
	CreatedAt              time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time    `json:"updated_at" gorm:"not null"`
}

func (SubscriptionRecord) TableName() string { return "user_subscriptions" }

// Clone returns a deep copy so callers can stage changes without aliasing.
func (r *SubscriptionRecord) Clone() *SubscriptionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.CurrentPeriodEnd != nil {
		end := *r.CurrentPeriodEnd
		out.CurrentPeriodEnd = &end
	}
	return &out
}

// StatusOf treats a missing record as StatusNone.
func StatusOf(r *SubscriptionRecord) Status {
	if r == nil || r.Status == "" {
		return StatusNone
	}
	return r.Status
}

// Outcome is the terminal result recorded for a processed event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

// ProcessedEventRecord is inserted once per provider event. A conflicting
// insert is how redelivery is detected.
type ProcessedEventRecord struct {
	EventID         string         `json:"event_id" gorm:"primaryKey;size:191"`
	Provider        string         `json:"provider" gorm:"size:191;not null"`
	Kind            string         `json:"kind" gorm:"size:191;not null"`
	Outcome         Outcome        `json:"outcome" gorm:"size:191;not null"`
	Reason          string         `json:"reason" gorm:"type:text"`
	UserID          string         `json:"user_id" gorm:"size:191"`
	SubscriptionRef string         `json:"subscription_ref" gorm:"size:191"`
	Payload         datatypes.JSON `json:"payload"`
	OccurredAt      time.Time      `json:"occurred_at" gorm:"not null"`
	ProcessedAt     time.Time      `json:"processed_at" gorm:"not null"`
}

func (ProcessedEventRecord) TableName() string { return "processed_webhook_events" }

// User is the slice of the application user entity this service reads.
type User struct {
	ID                 string `json:"id" gorm:"primaryKey;size:191"`
	Email              string `json:"email" gorm:"size:191"`
	ProviderCustomerID string `json:"provider_customer_id" gorm:"size:191;index"`
}

func (User) TableName() string { return "users" }
