package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BrokerageFirm is an organization whose brokers manage client portfolios.
type BrokerageFirm struct {
	BrokerageID uuid.UUID      `gorm:"column:brokerage_id;type:uuid;primaryKey" json:"brokerage_id"`
	Name        string         `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Code        string         `gorm:"column:code;type:varchar(12);not null;uniqueIndex" json:"code"`
	CountryCode string         `gorm:"column:country_code;type:char(2);not null" json:"country_code"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (BrokerageFirm) TableName() string {
	return "brokerage_firms"
}

func (b *BrokerageFirm) BeforeCreate(tx *gorm.DB) error {
	if b.BrokerageID == uuid.Nil {
		b.BrokerageID = uuid.New()
	}
	return nil
}
