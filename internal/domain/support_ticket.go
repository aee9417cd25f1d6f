package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketOpen    = "open"
	TicketPending = "pending"
	TicketSolved  = "solved"
	TicketClosed  = "closed"

	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func ValidTicketStatus(s string) bool {
	switch s {
	case TicketOpen, TicketPending, TicketSolved, TicketClosed:
		return true
	}
	return false
}

// SupportTicket is mirrored to the external support desk by ExternalID.
type SupportTicket struct {
	TicketID    uuid.UUID `gorm:"column:ticket_id;type:uuid;primaryKey" json:"ticket_id"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Subject     string    `gorm:"column:subject;not null" json:"subject"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	Category    string    `gorm:"column:category;type:varchar(32);not null" json:"category"`
	Priority    string    `gorm:"column:priority;type:varchar(10);not null;default:normal" json:"priority"`
	Status      string    `gorm:"column:status;type:varchar(10);not null;default:open;index" json:"status"`
	ExternalID  *string   `gorm:"column:external_id;uniqueIndex" json:"external_id"`
	CreatedAt   time.Time `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (SupportTicket) TableName() string {
	return "support_tickets"
}

func (s *SupportTicket) BeforeCreate(tx *gorm.DB) error {
	if s.TicketID == uuid.Nil {
		s.TicketID = uuid.New()
	}
	return nil
}
