package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditImmutable is returned by the update and delete hooks of AuditLog.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditLog is an append-only record of one mutating operation.
type AuditLog struct {
	AuditID    uuid.UUID      `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`
	ActorID    uuid.UUID      `gorm:"column:actor_id;type:uuid;not null;index" json:"actor_id"`
	ActorRole  string         `gorm:"column:actor_role;type:varchar(20);not null" json:"actor_role"`
	Action     string         `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	TargetType string         `gorm:"column:target_type;type:varchar(32);not null;index:idx_audit_target" json:"target_type"`
	TargetID   uuid.UUID      `gorm:"column:target_id;type:uuid;not null;index:idx_audit_target" json:"target_id"`
	Before     datatypes.JSON `gorm:"column:before" json:"before"`
	After      datatypes.JSON `gorm:"column:after" json:"after"`
	CreatedAt  time.Time      `gorm:"column:created_at;index" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.AuditID == uuid.Nil {
		a.AuditID = uuid.New()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
