package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"

	UserActive    = "active"
	UserSuspended = "suspended"

	AccountIndividual = "individual"
	AccountBroker     = "broker"
)

// User is a registered account. Users are never hard-deleted; Status carries suspension.
type User struct {
	UserID       uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Email        string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	Fullname     string         `gorm:"column:fullname;not null" json:"fullname"`
	AccountType  string         `gorm:"column:account_type;type:varchar(20);not null;default:individual" json:"account_type"`
	Role         string         `gorm:"column:role;type:varchar(20);not null;default:individual" json:"role"`
	KYCStatus    string         `gorm:"column:kyc_status;type:varchar(20);not null;default:pending" json:"kyc_status"`
	KYCCheckID   *string        `gorm:"column:kyc_check_id;index" json:"kyc_check_id"`
	BrokerageID  *uuid.UUID     `gorm:"column:brokerage_id;type:uuid;index" json:"brokerage_id"`
	Status       string         `gorm:"column:status;type:varchar(20);not null;default:active" json:"status"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate sets UUID if not set (for DBs without gen_random_uuid).
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// DeviceToken is a push-notification delivery token registered by one of the user's devices.
type DeviceToken struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Token     string    `gorm:"column:token;not null;uniqueIndex" json:"token"`
	Platform  string    `gorm:"column:platform;type:varchar(10);not null" json:"platform"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}

func (d *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
