package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio is owned by exactly one user and optionally managed by a brokerage.
// Balance invariant: Total == Available + Pending, Available >= 0.
type Portfolio struct {
	PortfolioID uuid.UUID       `gorm:"column:portfolio_id;type:uuid;primaryKey" json:"portfolio_id"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	BrokerageID *uuid.UUID      `gorm:"column:brokerage_id;type:uuid;index" json:"brokerage_id"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Currency    string          `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Available   decimal.Decimal `gorm:"column:available;type:decimal(18,2);not null;default:0" json:"available"`
	Pending     decimal.Decimal `gorm:"column:pending;type:decimal(18,2);not null;default:0" json:"pending"`
	Total       decimal.Decimal `gorm:"column:total;type:decimal(18,2);not null;default:0" json:"total"`
	Version     int64           `gorm:"column:version;not null;default:0" json:"-"`
	Positions   []Position      `gorm:"foreignKey:PortfolioID;references:PortfolioID" json:"positions,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

func (p *Portfolio) BeforeCreate(tx *gorm.DB) error {
	if p.PortfolioID == uuid.Nil {
		p.PortfolioID = uuid.New()
	}
	return nil
}

// BalanceConsistent reports whether the split balance adds up and nothing is negative.
func (p Portfolio) BalanceConsistent() bool {
	return p.Total.Equal(p.Available.Add(p.Pending)) &&
		!p.Available.IsNegative() && !p.Pending.IsNegative()
}

// Position is the holding of one ticker symbol inside a portfolio.
type Position struct {
	PositionID   uuid.UUID       `gorm:"column:position_id;type:uuid;primaryKey" json:"position_id"`
	PortfolioID  uuid.UUID       `gorm:"column:portfolio_id;type:uuid;not null;uniqueIndex:idx_portfolio_symbol" json:"portfolio_id"`
	Symbol       string          `gorm:"column:symbol;type:varchar(12);not null;uniqueIndex:idx_portfolio_symbol" json:"symbol"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(18,6);not null;default:0" json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"column:average_price;type:decimal(18,4);not null;default:0" json:"average_price"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.PositionID == uuid.Nil {
		p.PositionID = uuid.New()
	}
	return nil
}
