package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "session:"
	userSessionsPrefix = "user_sessions:"
	DefaultTTL         = 24 * time.Hour
)

// ErrNotFound is returned by Get when the session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// User is the shape stored under session:<sid> and returned by /auth/me.
type User struct {
	UserID      string  `json:"user_id"`
	Fullname    string  `json:"fullname"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	KYCStatus   string  `json:"kyc_status"`
	BrokerageID *string `json:"brokerage_id"`
}

func FromDomain(u *domain.User) User {
	out := User{
		UserID:    u.UserID.String(),
		Fullname:  u.Fullname,
		Email:     u.Email,
		Role:      u.Role,
		KYCStatus: u.KYCStatus,
	}
	if u.BrokerageID != nil {
		s := u.BrokerageID.String()
		out.BrokerageID = &s
	}
	return out
}

// Principal converts the stored user into an access principal. ok is false when the
// stored user id is malformed.
func (u User) Principal() (access.Principal, bool) {
	id, err := uuid.Parse(u.UserID)
	if err != nil {
		return access.Principal{}, false
	}
	p := access.Principal{UserID: id, Role: u.Role}
	if u.BrokerageID != nil {
		if bid, err := uuid.Parse(*u.BrokerageID); err == nil {
			p.BrokerageID = &bid
		}
	}
	return p, true
}

// Store keeps sessions in Redis. Each user's session ids are indexed under
// user_sessions:<user_id> so role changes can revoke them.
type Store struct {
	Rdb *redis.Client
	TTL time.Duration
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{Rdb: rdb, TTL: DefaultTTL}
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

// Create starts a new session for u and returns its id.
func (s *Store) Create(ctx context.Context, u User) (string, error) {
	sid := uuid.NewString()
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	pipe := s.Rdb.TxPipeline()
	pipe.Set(ctx, keyPrefix+sid, b, s.ttl())
	pipe.SAdd(ctx, userSessionsPrefix+u.UserID, sid)
	pipe.Expire(ctx, userSessionsPrefix+u.UserID, s.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *Store) Get(ctx context.Context, sid string) (*User, error) {
	if sid == "" {
		return nil, ErrNotFound
	}
	b, err := s.Rdb.Get(ctx, keyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Destroy removes one session.
func (s *Store) Destroy(ctx context.Context, sid string) error {
	u, err := s.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.Rdb.TxPipeline()
	pipe.Del(ctx, keyPrefix+sid)
	pipe.SRem(ctx, userSessionsPrefix+u.UserID, sid)
	_, err = pipe.Exec(ctx)
	return err
}

// DestroyUser revokes every session of userID.
func (s *Store) DestroyUser(ctx context.Context, userID uuid.UUID) error {
	idx := userSessionsPrefix + userID.String()
	sids, err := s.Rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, keyPrefix+sid)
	}
	keys = append(keys, idx)
	return s.Rdb.Del(ctx, keys...).Err()
}

// RefreshUser rewrites the stored user in every live session of u, keeping each
// session's remaining TTL. Used after KYC promotes a role.
func (s *Store) RefreshUser(ctx context.Context, u *domain.User) error {
	stored := FromDomain(u)
	b, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	idx := userSessionsPrefix + stored.UserID
	sids, err := s.Rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	for _, sid := range sids {
		err := s.Rdb.SetArgs(ctx, keyPrefix+sid, b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
		if errors.Is(err, redis.Nil) {
			s.Rdb.SRem(ctx, idx, sid)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
