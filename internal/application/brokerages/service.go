// Package brokerages manages brokerage firms and their broker membership.
package brokerages

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var nonLetters = regexp.MustCompile(`[^A-Za-z]`)

// Sessions is what membership changes need from the session store.
type Sessions interface {
	RefreshUser(ctx context.Context, u *domain.User) error
	DestroyUser(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	DB       *gorm.DB
	Sessions Sessions
}

type CreateInput struct {
	Name        string `json:"name" validate:"required"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
}

// Member is the public shape of a brokerage member.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Fullname string    `json:"fullname"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}

type Detail struct {
	domain.BrokerageFirm
	Members []Member `json:"members"`
}

// generateCode builds a short firm code: two letters of the name and six of the id.
func generateCode(name string, id uuid.UUID) string {
	prefix := strings.ToUpper(nonLetters.ReplaceAllString(name, ""))
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	for len(prefix) < 2 {
		prefix += "X"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:6]
	return prefix + "-" + suffix
}

// Create registers a firm. Super-admin only.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*domain.BrokerageFirm, error) {
	if !constants.AllowedRole(constants.ManageBrokerages, p.Role) {
		return nil, apperr.Forbidden("forbidden", "Only super-admins can create brokerages")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("invalid_name", "name is required")
	}
	if len(in.CountryCode) != 2 {
		return nil, apperr.Validation("invalid_country_code", "country_code must be a 2-letter ISO code")
	}
	id := uuid.New()
	firm := &domain.BrokerageFirm{
		BrokerageID: id,
		Name:        name,
		Code:        generateCode(name, id),
		CountryCode: strings.ToUpper(in.CountryCode),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.BrokerageFirm{}).Where("LOWER(name) = ?", strings.ToLower(name)).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("brokerage_exists", "A brokerage with this name already exists")
		}
		if err := tx.Create(firm).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "brokerage.create", TargetType: access.KindBrokerage, TargetID: firm.BrokerageID, After: firm,
		})
	})
	if err != nil {
		return nil, err
	}
	return firm, nil
}

// Get returns the firm and its members to members of the firm, audit and super-admins.
func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*Detail, error) {
	db := s.DB.WithContext(ctx)
	firm, err := load(db, id)
	if err != nil {
		return nil, err
	}
	member := p.BrokerageID != nil && *p.BrokerageID == firm.BrokerageID
	if !member {
		if err := access.Require(p, access.BrokerageResource(*firm), access.Read); err != nil {
			return nil, err
		}
	}
	var members []Member
	if err := db.Model(&domain.User{}).
		Select("user_id, fullname, email, role").
		Where("brokerage_id = ?", id).
		Order("created_at ASC").
		Scan(&members).Error; err != nil {
		return nil, err
	}
	return &Detail{BrokerageFirm: *firm, Members: members}, nil
}

// List returns every firm. Super-admin and audit only.
func (s *Service) List(ctx context.Context, p access.Principal) ([]domain.BrokerageFirm, error) {
	if scope := access.ListScope(p, access.KindBrokerage); !scope.All {
		return nil, apperr.Forbidden("forbidden", "You cannot list brokerages")
	}
	var out []domain.BrokerageFirm
	if err := s.DB.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AddMember attaches a broker account to the firm. Allowed for super-admins and senior brokers
// of that firm.
func (s *Service) AddMember(ctx context.Context, p access.Principal, brokerageID, userID uuid.UUID) (*domain.User, error) {
	var target domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		firm, err := load(tx, brokerageID)
		if err != nil {
			return err
		}
		if err := requireManager(p, firm.BrokerageID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user_not_found", "User not found")
			}
			return err
		}
		if target.Role != constants.BrokerPending && !constants.IsBroker(target.Role) {
			return apperr.Validation("not_a_broker", "Only broker accounts can join a brokerage")
		}
		if target.BrokerageID != nil {
			if *target.BrokerageID == firm.BrokerageID {
				return nil
			}
			return apperr.Conflict("member_of_other_brokerage", "User already belongs to another brokerage")
		}
		if err := tx.Model(&domain.User{}).Where("user_id = ?", target.UserID).Update("brokerage_id", firm.BrokerageID).Error; err != nil {
			return err
		}
		target.BrokerageID = &firm.BrokerageID
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "brokerage.add_member", TargetType: access.KindUser, TargetID: target.UserID,
			Before: map[string]interface{}{"brokerage_id": nil},
			After:  map[string]interface{}{"brokerage_id": firm.BrokerageID},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.Sessions != nil {
		if err := s.Sessions.RefreshUser(ctx, &target); err != nil {
			log.Error().Err(err).Str("user_id", target.UserID.String()).Msg("failed to refresh sessions after membership change")
		}
	}
	return &target, nil
}

// RemoveMember detaches a broker from the firm. Active broker roles fall back to broker-pending
// and the user's sessions are revoked.
func (s *Service) RemoveMember(ctx context.Context, p access.Principal, brokerageID, userID uuid.UUID) (*domain.User, error) {
	if p.UserID == userID {
		return nil, apperr.Forbidden("self_removal", "You cannot remove yourself from a brokerage")
	}
	var target domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := load(tx, brokerageID); err != nil {
			return err
		}
		if err := requireManager(p, brokerageID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND brokerage_id = ?", userID, brokerageID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("member_not_found", "User is not a member of this brokerage")
			}
			return err
		}
		before := map[string]interface{}{"brokerage_id": brokerageID, "role": target.Role}
		role := target.Role
		if constants.IsBroker(role) {
			role = constants.BrokerPending
		}
		if err := tx.Model(&domain.User{}).Where("user_id = ?", target.UserID).
			Updates(map[string]interface{}{"brokerage_id": nil, "role": role}).Error; err != nil {
			return err
		}
		target.BrokerageID = nil
		target.Role = role
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "brokerage.remove_member", TargetType: access.KindUser, TargetID: target.UserID,
			Before: before,
			After:  map[string]interface{}{"brokerage_id": nil, "role": role},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.Sessions != nil {
		if err := s.Sessions.DestroyUser(ctx, target.UserID); err != nil {
			log.Error().Err(err).Str("user_id", target.UserID.String()).Msg("failed to revoke sessions")
		}
	}
	return &target, nil
}

func requireManager(p access.Principal, brokerageID uuid.UUID) error {
	if p.IsZero() {
		return apperr.Unauthorized("Unauthorized")
	}
	if p.Role == constants.SuperAdmin {
		return nil
	}
	if p.Role == constants.BrokerSenior && p.BrokerageID != nil && *p.BrokerageID == brokerageID {
		return nil
	}
	return apperr.Forbidden("forbidden", "Only super-admins or senior brokers of this brokerage can manage members")
}

func load(tx *gorm.DB, id uuid.UUID) (*domain.BrokerageFirm, error) {
	var b domain.BrokerageFirm
	if err := tx.Where("brokerage_id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("brokerage_not_found", "Brokerage not found")
		}
		return nil, err
	}
	return &b, nil
}
