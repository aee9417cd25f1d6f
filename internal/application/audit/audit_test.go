package audit

import (
	"context"
	"testing"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t)
}

func TestRecord_WritesEntryInsideTransaction(t *testing.T) {
	db := setupAuditDB(t)
	actor := access.Principal{UserID: uuid.New(), Role: constants.Individual}
	target := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return Record(tx, Entry{
			Actor: actor, Action: "portfolio.create", TargetType: access.KindPortfolio, TargetID: target,
			After: map[string]string{"name": "Growth"},
		})
	})
	require.NoError(t, err)

	var logs []domain.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, actor.UserID, logs[0].ActorID)
	assert.Equal(t, "individual", logs[0].ActorRole)
	assert.Equal(t, target, logs[0].TargetID)
	assert.JSONEq(t, `{"name":"Growth"}`, string(logs[0].After))
}

func TestRecord_RollsBackWithTransaction(t *testing.T) {
	db := setupAuditDB(t)
	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, Record(tx, Entry{Action: "x", TargetType: access.KindTrade, TargetID: uuid.New()}))
		return assert.AnError
	})
	var n int64
	db.Model(&domain.AuditLog{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestRecord_RequiresTarget(t *testing.T) {
	db := setupAuditDB(t)
	assert.Error(t, Record(db, Entry{Action: "x"}))
}

func TestAuditLog_Immutable(t *testing.T) {
	db := setupAuditDB(t)
	require.NoError(t, Record(db, Entry{Action: "trade.create", TargetType: access.KindTrade, TargetID: uuid.New()}))
	var row domain.AuditLog
	require.NoError(t, db.First(&row).Error)

	err := db.Model(&row).Update("action", "tampered").Error
	assert.ErrorIs(t, err, domain.ErrAuditImmutable)
	err = db.Delete(&row).Error
	assert.ErrorIs(t, err, domain.ErrAuditImmutable)

	var again domain.AuditLog
	require.NoError(t, db.First(&again, "audit_id = ?", row.AuditID).Error)
	assert.Equal(t, "trade.create", again.Action)
}

func TestList_FiltersAndAccess(t *testing.T) {
	db := setupAuditDB(t)
	svc := &Service{DB: db}
	target := uuid.New()
	require.NoError(t, Record(db, Entry{Action: "trade.create", TargetType: access.KindTrade, TargetID: target}))
	require.NoError(t, Record(db, Entry{Action: "trade.cancel", TargetType: access.KindTrade, TargetID: target}))
	require.NoError(t, Record(db, Entry{Action: "portfolio.create", TargetType: access.KindPortfolio, TargetID: uuid.New()}))

	auditor := access.Principal{UserID: uuid.New(), Role: constants.Audit}
	rows, total, err := svc.List(context.Background(), auditor, Filter{TargetID: &target})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)

	rows, _, err = svc.List(context.Background(), auditor, Filter{Action: "portfolio.create"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	broker := access.Principal{UserID: uuid.New(), Role: constants.BrokerSenior}
	_, _, err = svc.List(context.Background(), broker, Filter{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
