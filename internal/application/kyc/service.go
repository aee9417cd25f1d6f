// Package kyc starts identity-verification checks and applies their results.
package kyc

import (
	"context"
	"errors"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/emails"
	"brokerdesk-backend/internal/application/events"
	"brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/application/realtime"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	StatusComplete = "complete"
	ResultClear    = "clear"
)

// SessionRefresher rewrites a user's live sessions after their role or KYC status changed.
type SessionRefresher interface {
	RefreshUser(ctx context.Context, u *domain.User) error
}

type Notifier interface {
	Notify(userID uuid.UUID, msg notifications.Message)
}

type Service struct {
	DB       *gorm.DB
	Provider Provider
	Sessions SessionRefresher
	Emails   emails.Sender
	Notifier Notifier
	Events   *events.Fanout
	Async    async.Runner
}

// system is the actor recorded for provider-reported results.
var system = access.Principal{Role: "system"}

// Result is the webhook body sent by the provider.
type Result struct {
	CheckID string `json:"check_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
	Result  string `json:"result"`
}

// Start opens a check for the caller. Approved users cannot start another one.
func (s *Service) Start(ctx context.Context, p access.Principal) (*domain.User, error) {
	if p.IsZero() {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	if s.Provider == nil {
		return nil, apperr.Upstream("kyc_unavailable", "Identity verification is not configured", nil)
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", p.UserID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user_not_found", "User not found")
		}
		return nil, err
	}
	if u.KYCStatus == domain.KYCApproved {
		return nil, apperr.Conflict("kyc_already_approved", "Identity is already verified")
	}

	check, err := s.Provider.CreateCheck(ctx, CheckRequest{ApplicantID: u.UserID.String(), Email: u.Email, Fullname: u.Fullname})
	if err != nil {
		log.Warn().Err(err).Str("user_id", u.UserID.String()).Msg("kyc check creation failed")
		return nil, apperr.Upstream("kyc_provider_failed", "Could not start identity verification", err)
	}

	before := u.KYCStatus
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.User{}).Where("user_id = ?", u.UserID).
			Updates(map[string]interface{}{"kyc_check_id": check.ID, "kyc_status": domain.KYCPending}).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "kyc.start", TargetType: access.KindUser, TargetID: u.UserID,
			Before: map[string]string{"kyc_status": before},
			After:  map[string]string{"kyc_status": domain.KYCPending, "check_id": check.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	u.KYCCheckID = &check.ID
	u.KYCStatus = domain.KYCPending
	return &u, nil
}

// ApplyResult records a completed check. The caller must have verified the webhook signature.
// complete+clear approves the user and finalizes a pending broker; any other complete result
// rejects and returns a broker to broker-pending. Results that are not complete, or repeat the current decision, change nothing.
func (s *Service) ApplyResult(ctx context.Context, r Result) (*domain.User, bool, error) {
	if r.CheckID == "" {
		return nil, false, apperr.Validation("invalid_check_id", "check_id is required")
	}
	var u domain.User
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kyc_check_id = ?", r.CheckID).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("check_not_found", "No user for this check")
			}
			return err
		}
		if r.Status != StatusComplete {
			return nil
		}
		status := domain.KYCRejected
		if r.Result == ResultClear {
			status = domain.KYCApproved
		}
		role := u.Role
		switch {
		case status == domain.KYCApproved && u.Role == constants.BrokerPending:
			role = constants.Broker
		case status == domain.KYCRejected && constants.IsBroker(u.Role):
			role = constants.BrokerPending
		}
		if status == u.KYCStatus && role == u.Role {
			return nil
		}
		// Guarded on the status read above so concurrent deliveries decide once.
		res := tx.Model(&domain.User{}).
			Where("user_id = ? AND kyc_status = ?", u.UserID, u.KYCStatus).
			Updates(map[string]interface{}{"kyc_status": status, "role": role})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_user", "User was modified concurrently")
		}
		before := map[string]string{"kyc_status": u.KYCStatus, "role": u.Role}
		u.KYCStatus, u.Role = status, role
		changed = true
		return audit.Record(tx, audit.Entry{
			Actor: system, Action: "kyc." + status, TargetType: access.KindUser, TargetID: u.UserID,
			Before: before,
			After:  map[string]string{"kyc_status": status, "role": role, "check_id": r.CheckID, "result": r.Result},
		})
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.announce(ctx, &u)
	}
	return &u, changed, nil
}

func (s *Service) announce(ctx context.Context, u *domain.User) {
	approved := u.KYCStatus == domain.KYCApproved
	if s.Sessions != nil {
		if err := s.Sessions.RefreshUser(ctx, u); err != nil {
			log.Error().Err(err).Str("user_id", u.UserID.String()).Msg("failed to refresh sessions after kyc decision")
		}
	}
	s.Events.Emit(ctx, realtime.UserTopic(u.UserID), events.New(events.UserKYCChanged, u.UserID, map[string]interface{}{
		"kyc_status": u.KYCStatus,
		"role":       u.Role,
	}))
	if s.Notifier != nil {
		msg := notifications.Message{Title: "Identity verified", Body: "Your account is ready for trading"}
		if !approved {
			msg = notifications.Message{Title: "Identity verification failed", Body: "Please review your documents and try again"}
		}
		msg.Data = map[string]string{"kyc_status": u.KYCStatus}
		s.Notifier.Notify(u.UserID, msg)
	}
	if s.Emails != nil {
		to, name := u.Email, u.Fullname
		async.Run(s.Async, "kyc_email", func(ctx context.Context) {
			if err := s.Emails.SendKYCDecision(ctx, to, name, approved); err != nil {
				log.Warn().Err(err).Str("user_id", u.UserID.String()).Msg("kyc decision email failed")
			}
		})
	}
}
