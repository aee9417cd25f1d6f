package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxFee        = "fee"
	TxCommission = "commission"
	TxInterest   = "interest"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Terminal() bool {
	return s != TxPending
}

func ValidTransactionType(t string) bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxFee, TxCommission, TxInterest:
		return true
	}
	return false
}

// Transaction is a ledger entry against a portfolio balance. Terminal entries are immutable.
type Transaction struct {
	TransactionID     uuid.UUID         `gorm:"column:transaction_id;type:uuid;primaryKey" json:"transaction_id"`
	PortfolioID       uuid.UUID         `gorm:"column:portfolio_id;type:uuid;not null;index" json:"portfolio_id"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type              string            `gorm:"column:type;type:varchar(12);not null" json:"type"`
	Amount            decimal.Decimal   `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Currency          string            `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Status            TransactionStatus `gorm:"column:status;type:varchar(12);not null;index" json:"status"`
	CheckoutSessionID *string           `gorm:"column:checkout_session_id;index" json:"checkout_session_id"`
	ProcessedBy       *uuid.UUID        `gorm:"column:processed_by;type:uuid" json:"processed_by"`
	FailureReason     *string           `gorm:"column:failure_reason" json:"failure_reason"`
	CompletedAt       *time.Time        `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt         time.Time         `gorm:"column:updated_at" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TransactionID == uuid.Nil {
		t.TransactionID = uuid.New()
	}
	return nil
}
