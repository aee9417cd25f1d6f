// Package testutil builds in-memory databases, Redis servers and fixtures for package tests.
package testutil

import (
	"testing"

	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database pinned to one connection.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func CreateUser(t *testing.T, db *gorm.DB, role string, brokerageID *uuid.UUID) domain.User {
	t.Helper()
	u := domain.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Fullname:     "Test User",
		AccountType:  domain.AccountIndividual,
		Role:         role,
		KYCStatus:    domain.KYCApproved,
		Status:       domain.UserActive,
		BrokerageID:  brokerageID,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func CreateBrokerage(t *testing.T, db *gorm.DB, name string) domain.BrokerageFirm {
	t.Helper()
	b := domain.BrokerageFirm{Name: name, Code: uuid.NewString()[:8], CountryCode: "US"}
	require.NoError(t, db.Create(&b).Error)
	return b
}

// CreatePortfolio creates a portfolio whose whole balance is available.
func CreatePortfolio(t *testing.T, db *gorm.DB, userID uuid.UUID, brokerageID *uuid.UUID, available string) domain.Portfolio {
	t.Helper()
	amt := decimal.RequireFromString(available)
	p := domain.Portfolio{
		UserID:      userID,
		BrokerageID: brokerageID,
		Name:        "Main",
		Currency:    "usd",
		Available:   amt,
		Pending:     decimal.Zero,
		Total:       amt,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func ReloadPortfolio(t *testing.T, db *gorm.DB, id uuid.UUID) domain.Portfolio {
	t.Helper()
	var p domain.Portfolio
	require.NoError(t, db.Preload("Positions").First(&p, "portfolio_id = ?", id).Error)
	return p
}

func CountAudit(t *testing.T, db *gorm.DB, targetID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.AuditLog{}).Where("target_id = ?", targetID).Count(&n).Error)
	return n
}
