package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TradeStatus string

const (
	TradePending               TradeStatus = "pending"
	TradePendingBrokerApproval TradeStatus = "pending_broker_approval"
	TradePendingClientApproval TradeStatus = "pending_client_approval"
	TradeCompleted             TradeStatus = "completed"
	TradeCancelled             TradeStatus = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeCancelled
}

func ValidTradeStatus(s string) bool {
	switch TradeStatus(s) {
	case TradePending, TradePendingBrokerApproval, TradePendingClientApproval, TradeCompleted, TradeCancelled:
		return true
	}
	return false
}

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderMarket    = "market"
	OrderLimit     = "limit"
	OrderStop      = "stop"
	OrderStopLimit = "stop_limit"

	TIFDay = "day"
	TIFGTC = "gtc"
	TIFIOC = "ioc"
	TIFFOK = "fok"
)

// Trade is a request to buy or sell a symbol on behalf of a portfolio.
// When BrokerageID is set it always equals the portfolio's brokerage.
type Trade struct {
	TradeID          uuid.UUID        `gorm:"column:trade_id;type:uuid;primaryKey" json:"trade_id"`
	PortfolioID      uuid.UUID        `gorm:"column:portfolio_id;type:uuid;not null;index" json:"portfolio_id"`
	UserID           uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	BrokerageID      *uuid.UUID       `gorm:"column:brokerage_id;type:uuid;index" json:"brokerage_id"`
	Symbol           string           `gorm:"column:symbol;type:varchar(12);not null" json:"symbol"`
	Side             string           `gorm:"column:side;type:varchar(4);not null" json:"side"`
	OrderType        string           `gorm:"column:order_type;type:varchar(12);not null" json:"order_type"`
	TimeInForce      string           `gorm:"column:time_in_force;type:varchar(4);not null;default:day" json:"time_in_force"`
	Quantity         decimal.Decimal  `gorm:"column:quantity;type:decimal(18,6);not null" json:"quantity"`
	Price            decimal.Decimal  `gorm:"column:price;type:decimal(18,4);not null" json:"price"`
	LimitPrice       *decimal.Decimal `gorm:"column:limit_price;type:decimal(18,4)" json:"limit_price"`
	StopPrice        *decimal.Decimal `gorm:"column:stop_price;type:decimal(18,4)" json:"stop_price"`
	Status           TradeStatus      `gorm:"column:status;type:varchar(30);not null;index" json:"status"`
	ApprovedBy       *uuid.UUID       `gorm:"column:approved_by;type:uuid" json:"approved_by"`
	BrokerApprovedBy *uuid.UUID       `gorm:"column:broker_approved_by;type:uuid" json:"broker_approved_by"`
	CompletedAt      *time.Time       `gorm:"column:completed_at" json:"completed_at"`
	CancelledAt      *time.Time       `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancelReason     *string          `gorm:"column:cancel_reason" json:"cancel_reason"`
	CreatedAt        time.Time        `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt        time.Time        `gorm:"column:updated_at" json:"updatedAt"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.TradeID == uuid.Nil {
		t.TradeID = uuid.New()
	}
	return nil
}

// Notional is quantity times price.
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}
