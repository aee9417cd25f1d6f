// Package support keeps support tickets and mirrors them into the external help desk.
package support

import (
	"context"
	"errors"
	"strings"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/events"
	"brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/application/realtime"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Notifier interface {
	Notify(userID uuid.UUID, msg notifications.Message)
}

type Service struct {
	DB       *gorm.DB
	Desk     Desk
	Events   *events.Fanout
	Notifier Notifier
	Async    async.Runner
}

// desk is the actor recorded for changes reported by the help desk.
var desk = access.Principal{Role: "system"}

type CreateInput struct {
	Subject     string `json:"subject" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
	Category    string `json:"category" validate:"omitempty,oneof=account kyc deposit withdrawal trade other"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// DeskUpdate is the help desk's webhook body.
type DeskUpdate struct {
	ExternalID string `json:"external_id" validate:"required"`
	Status     string `json:"status" validate:"required"`
}

// Create stores an open ticket and syncs it to the help desk in the background.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*domain.SupportTicket, error) {
	if p.IsZero() {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	t := &domain.SupportTicket{
		UserID:      p.UserID,
		Subject:     in.Subject,
		Description: in.Description,
		Category:    in.Category,
		Priority:    in.Priority,
		Status:      domain.TicketOpen,
	}
	if t.Category == "" {
		t.Category = "other"
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityNormal
	}
	var email string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.Select("email").Where("user_id = ?", p.UserID).First(&u).Error; err == nil {
			email = u.Email
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "support_ticket.create", TargetType: access.KindTicket, TargetID: t.TicketID, After: t,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.Desk != nil {
		ticket := *t
		async.Run(s.Async, "support_desk_sync", func(ctx context.Context) {
			s.sync(ctx, ticket, email)
		})
	}
	return t, nil
}

func (s *Service) sync(ctx context.Context, t domain.SupportTicket, email string) {
	externalID, err := s.Desk.CreateTicket(ctx, DeskTicket{
		LocalID:        t.TicketID.String(),
		Subject:        t.Subject,
		Description:    t.Description,
		Priority:       t.Priority,
		RequesterEmail: email,
		Tags:           []string{"brokerdesk", t.Category},
	})
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", t.TicketID.String()).Msg("support desk sync failed")
		return
	}
	if err := s.DB.WithContext(ctx).Model(&domain.SupportTicket{}).
		Where("ticket_id = ? AND external_id IS NULL", t.TicketID).
		Update("external_id", externalID).Error; err != nil {
		log.Error().Err(err).Str("ticket_id", t.TicketID.String()).Msg("failed to store support desk id")
	}
}

func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.SupportTicket, error) {
	t, err := load(s.DB.WithContext(ctx), "ticket_id = ?", id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.TicketResource(*t), access.Read); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the caller's tickets, or every ticket for support, audit and super-admins.
func (s *Service) List(ctx context.Context, p access.Principal, f ListFilter) ([]domain.SupportTicket, int64, error) {
	if f.Status != "" && !domain.ValidTicketStatus(f.Status) {
		return nil, 0, apperr.Validation("invalid_status", "status must be one of: open pending solved closed")
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	q := access.ListScope(p, access.KindTicket).Apply(s.DB.WithContext(ctx).Model(&domain.SupportTicket{}))
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.SupportTicket
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatus is the support agent's status change.
func (s *Service) UpdateStatus(ctx context.Context, p access.Principal, id uuid.UUID, status string) (*domain.SupportTicket, error) {
	if !constants.AllowedRole(constants.ManageTickets, p.Role) {
		return nil, apperr.Forbidden("forbidden", "Only support staff can change ticket status")
	}
	return s.transition(ctx, p, "ticket_id = ?", id, status)
}

// ApplyDeskUpdate applies a status reported by the help desk webhook. The caller must have
// verified the webhook signature.
func (s *Service) ApplyDeskUpdate(ctx context.Context, u DeskUpdate) (*domain.SupportTicket, error) {
	if err := validation.Struct(u); err != nil {
		return nil, err
	}
	return s.transition(ctx, desk, "external_id = ?", u.ExternalID, mapDeskStatus(u.Status))
}

func (s *Service) transition(ctx context.Context, p access.Principal, where string, key interface{}, status string) (*domain.SupportTicket, error) {
	if !domain.ValidTicketStatus(status) {
		return nil, apperr.Validation("invalid_status", "status must be one of: open pending solved closed")
	}
	var t *domain.SupportTicket
	var before string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if t, err = load(tx, where, key); err != nil {
			return err
		}
		before = t.Status
		if before == status {
			return nil
		}
		res := tx.Model(&domain.SupportTicket{}).
			Where("ticket_id = ? AND status = ?", t.TicketID, before).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_ticket", "Ticket was modified concurrently")
		}
		t.Status = status
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "support_ticket.status_change", TargetType: access.KindTicket, TargetID: t.TicketID,
			Before: map[string]string{"status": before}, After: map[string]string{"status": status},
		})
	})
	if err != nil {
		return nil, err
	}
	if before != status {
		s.Events.Emit(ctx, realtime.UserTopic(t.UserID), events.New(events.TicketStatusChanged, t.UserID, map[string]interface{}{
			"ticket_id": t.TicketID,
			"status":    t.Status,
		}))
		if s.Notifier != nil && p.UserID != t.UserID {
			s.Notifier.Notify(t.UserID, notifications.Message{
				Title: "Support ticket updated",
				Body:  "\"" + t.Subject + "\" is now " + t.Status,
				Data:  map[string]string{"ticket_id": t.TicketID.String(), "status": t.Status},
			})
		}
	}
	return t, nil
}

// mapDeskStatus folds the help desk's status vocabulary into ours.
func mapDeskStatus(s string) string {
	switch strings.ToLower(s) {
	case "new", "open":
		return domain.TicketOpen
	case "pending", "hold", "on-hold":
		return domain.TicketPending
	case "solved":
		return domain.TicketSolved
	case "closed":
		return domain.TicketClosed
	}
	return s
}

func load(tx *gorm.DB, where string, key interface{}) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	if err := tx.Where(where, key).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("ticket_not_found", "Support ticket not found")
		}
		return nil, err
	}
	return &t, nil
}
