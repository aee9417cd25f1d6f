package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentEvent archives every verified payment-provider webhook. The unique event id
// makes redelivered events a no-op.
type PaymentEvent struct {
	PaymentEventID    uuid.UUID      `gorm:"column:payment_event_id;type:uuid;primaryKey" json:"payment_event_id"`
	StripeEventID     string         `gorm:"column:stripe_event_id;uniqueIndex;not null" json:"stripe_event_id"`
	Type              string         `gorm:"column:type;type:varchar(64);not null" json:"type"`
	CheckoutSessionID string         `gorm:"column:checkout_session_id;index" json:"checkout_session_id"`
	TransactionID     *uuid.UUID     `gorm:"column:transaction_id;type:uuid;index" json:"transaction_id"`
	Payload           datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	CreatedAt         time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}

func (e *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if e.PaymentEventID == uuid.Nil {
		e.PaymentEventID = uuid.New()
	}
	return nil
}
