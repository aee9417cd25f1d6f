package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry describes one mutating operation.
type Entry struct {
	Actor      access.Principal
	Action     string
	TargetType access.Kind
	TargetID   uuid.UUID
	Before     interface{}
	After      interface{}
}

// Record appends the entry using tx, which must be the caller's open transaction.
// A returned error must abort that transaction.
func Record(tx *gorm.DB, e Entry) error {
	if e.Action == "" || e.TargetID == uuid.Nil {
		return fmt.Errorf("audit: action and target are required")
	}
	before, err := snapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := snapshot(e.After)
	if err != nil {
		return err
	}
	role := e.Actor.Role
	if role == "" {
		role = "system"
	}
	row := domain.AuditLog{
		ActorID:    e.Actor.UserID,
		ActorRole:  role,
		Action:     e.Action,
		TargetType: string(e.TargetType),
		TargetID:   e.TargetID,
		Before:     before,
		After:      after,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func snapshot(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit snapshot: %w", err)
	}
	return datatypes.JSON(b), nil
}

type Service struct {
	DB *gorm.DB
}

type Filter struct {
	ActorID    *uuid.UUID
	TargetType string
	TargetID   *uuid.UUID
	Action     string
	Limit      int
	Offset     int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// List returns entries newest first with the total matching count.
func (s *Service) List(ctx context.Context, p access.Principal, f Filter) ([]domain.AuditLog, int64, error) {
	if err := access.Require(p, access.AuditLogResource(), access.Read); err != nil {
		return nil, 0, err
	}
	q := s.DB.WithContext(ctx).Model(&domain.AuditLog{})
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	if f.TargetType != "" {
		q = q.Where("target_type = ?", f.TargetType)
	}
	if f.TargetID != nil {
		q = q.Where("target_id = ?", *f.TargetID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var rows []domain.AuditLog
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	return rows, total, err
}
