// Package notifications stores device tokens and delivers push messages to them.
package notifications

import (
	"context"
	"errors"
	"strings"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var validPlatforms = map[string]bool{"ios": true, "android": true, "web": true}

type Service struct {
	DB     *gorm.DB
	Sender Sender
	Async  async.Runner
}

// RegisterToken stores token for the caller. A token already held by another user moves to the caller.
func (s *Service) RegisterToken(ctx context.Context, p access.Principal, token, platform string) (*domain.DeviceToken, error) {
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	if token == "" {
		return nil, apperr.Validation("invalid_token", "token is required")
	}
	if !validPlatforms[platform] {
		return nil, apperr.Validation("invalid_platform", "platform must be one of: ios android web")
	}
	var dt domain.DeviceToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", token).First(&dt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dt = domain.DeviceToken{UserID: p.UserID, Token: token, Platform: platform}
			return tx.Create(&dt).Error
		}
		if err != nil {
			return err
		}
		dt.UserID = p.UserID
		dt.Platform = platform
		return tx.Model(&domain.DeviceToken{}).Where("id = ?", dt.ID).
			Updates(map[string]interface{}{"user_id": p.UserID, "platform": platform}).Error
	})
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

func (s *Service) RemoveToken(ctx context.Context, p access.Principal, token string) error {
	res := s.DB.WithContext(ctx).Where("token = ? AND user_id = ?", token, p.UserID).Delete(&domain.DeviceToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("token_not_found", "Device token not found")
	}
	return nil
}

// Notify queues msg for every device of userID and returns immediately.
func (s *Service) Notify(userID uuid.UUID, msg Message) {
	if s == nil || s.Sender == nil {
		return
	}
	async.Run(s.Async, "push.notify", func(ctx context.Context) {
		if err := s.deliver(ctx, userID, msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("push delivery failed")
		}
	})
}

// deliver sends to every token concurrently and prunes the ones the provider rejected.
func (s *Service) deliver(ctx context.Context, userID uuid.UUID, msg Message) error {
	var tokens []domain.DeviceToken
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error; err != nil {
		return err
	}
	invalid := make([]bool, len(tokens))
	var g errgroup.Group
	for i := range tokens {
		g.Go(func() error {
			err := s.Sender.Send(ctx, tokens[i].Token, msg)
			if errors.Is(err, ErrInvalidToken) {
				invalid[i] = true
				return nil
			}
			return err
		})
	}
	sendErr := g.Wait()

	var stale []uuid.UUID
	for i, bad := range invalid {
		if bad {
			stale = append(stale, tokens[i].ID)
		}
	}
	if len(stale) > 0 {
		if err := s.DB.WithContext(ctx).Where("id IN ?", stale).Delete(&domain.DeviceToken{}).Error; err != nil {
			return err
		}
		log.Info().Int("removed", len(stale)).Str("user_id", userID.String()).Msg("removed invalid device tokens")
	}
	return sendErr
}
