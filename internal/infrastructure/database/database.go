package database

import (
	"brokerdesk-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind PgBouncer-style poolers.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// Models lists every persisted entity, in foreign-key order.
func Models() []interface{} {
	return []interface{}{
		&domain.BrokerageFirm{},
		&domain.User{},
		&domain.DeviceToken{},
		&domain.Portfolio{},
		&domain.Position{},
		&domain.Trade{},
		&domain.Transaction{},
		&domain.AuditLog{},
		&domain.SupportTicket{},
		&domain.Document{},
		&domain.PaymentEvent{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
