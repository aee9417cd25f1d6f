package portfolios

import (
	"context"
	"regexp"
	"strings"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var currencyRe = regexp.MustCompile(`^[a-z]{3}$`)

type Service struct {
	DB              *gorm.DB
	DefaultCurrency string
}

type CreateInput struct {
	Name        string
	Currency    string
	BrokerageID *uuid.UUID
}

// Create opens an empty portfolio owned by the caller. Support and audit staff are read-only.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*domain.Portfolio, error) {
	if p.Role == constants.Audit || p.Role == constants.Support {
		return nil, apperr.Forbidden("read_only_role", "Your role cannot open portfolios")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 80 {
		return nil, apperr.Validation("invalid_name", "name is required (max 80 characters)")
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.DefaultCurrency
	}
	if !currencyRe.MatchString(currency) {
		return nil, apperr.Validation("invalid_currency", "currency must be a 3-letter ISO code")
	}

	pf := domain.Portfolio{
		UserID:      p.UserID,
		BrokerageID: in.BrokerageID,
		Name:        name,
		Currency:    currency,
		Available:   decimal.Zero,
		Pending:     decimal.Zero,
		Total:       decimal.Zero,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.BrokerageID != nil {
			var n int64
			if err := tx.Model(&domain.BrokerageFirm{}).Where("brokerage_id = ?", *in.BrokerageID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperr.NotFound("brokerage_not_found", "Brokerage not found")
			}
		}
		if err := tx.Create(&pf).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "portfolio.create", TargetType: access.KindPortfolio, TargetID: pf.PortfolioID,
			After: pf,
		})
	})
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// Get returns the portfolio with its positions.
func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Portfolio, error) {
	var pf domain.Portfolio
	err := s.DB.WithContext(ctx).Preload("Positions", func(db *gorm.DB) *gorm.DB {
		return db.Order("symbol ASC")
	}).Where("portfolio_id = ?", id).First(&pf).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.NotFound("portfolio_not_found", "Portfolio not found")
	}
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.PortfolioResource(pf), access.Read); err != nil {
		return nil, err
	}
	return &pf, nil
}

// List returns every portfolio the caller may read, newest first.
func (s *Service) List(ctx context.Context, p access.Principal) ([]domain.Portfolio, error) {
	var out []domain.Portfolio
	q := access.ListScope(p, access.KindPortfolio).Apply(s.DB.WithContext(ctx).Model(&domain.Portfolio{}))
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// Authorize loads a portfolio and checks the caller's access in the given mode.
func (s *Service) Authorize(ctx context.Context, p access.Principal, id uuid.UUID, mode access.Mode) (*domain.Portfolio, error) {
	pf, err := Load(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.PortfolioResource(*pf), mode); err != nil {
		return nil, err
	}
	return pf, nil
}
