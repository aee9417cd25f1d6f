// Package auth verifies credentials and manages the Redis-backed login sessions.
package auth

import (
	"context"
	"errors"
	"strings"

	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/session"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginInput for login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionStore is the subset of session.Store used by login and logout.
type SessionStore interface {
	Create(ctx context.Context, u session.User) (string, error)
	Get(ctx context.Context, sid string) (*session.User, error)
	Destroy(ctx context.Context, sid string) error
}

type Service struct {
	DB       *gorm.DB
	Sessions SessionStore
}

// Login checks the credentials and opens a session. Unknown email and wrong password are
// reported the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, "", ErrEmailPasswordRequired
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		log.Info().Str("user_id", u.UserID.String()).Msg("login rejected: wrong password")
		return nil, "", ErrInvalidCredentials
	}
	if u.Status == domain.UserSuspended {
		return nil, "", ErrAccountSuspended
	}
	sid, err := s.StartSession(ctx, &u)
	if err != nil {
		return nil, "", err
	}
	return &u, sid, nil
}

// StartSession opens a session for an already authenticated user (login, registration).
func (s *Service) StartSession(ctx context.Context, u *domain.User) (string, error) {
	return s.Sessions.Create(ctx, session.FromDomain(u))
}

// Me returns the session user behind sid.
func (s *Service) Me(ctx context.Context, sid string) (*session.User, error) {
	u, err := s.Sessions.Get(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	return u, err
}

// Logout destroys sid. An unknown session is not an error.
func (s *Service) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.Sessions.Destroy(ctx, sid)
}
