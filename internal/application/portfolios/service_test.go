package portfolios

import (
	"context"
	"testing"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func principal(u domain.User) access.Principal {
	return access.Principal{UserID: u.UserID, Role: u.Role, BrokerageID: u.BrokerageID}
}

func TestCreate_DefaultsAndAudit(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db, DefaultCurrency: "usd"}
	u := testutil.CreateUser(t, db, constants.Individual, nil)

	pf, err := svc.Create(context.Background(), principal(u), CreateInput{Name: "Retirement"})
	require.NoError(t, err)
	assert.Equal(t, "usd", pf.Currency)
	assert.Equal(t, u.UserID, pf.UserID)
	assert.True(t, pf.Total.IsZero())
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, pf.PortfolioID))
}

func TestCreate_StaffRolesRejected(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db, DefaultCurrency: "usd"}
	for _, role := range []string{constants.Audit, constants.Support} {
		u := testutil.CreateUser(t, db, role, nil)
		_, err := svc.Create(context.Background(), principal(u), CreateInput{Name: "Side account"})
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), role)
	}
	var n int64
	require.NoError(t, db.Model(&domain.Portfolio{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreate_UnknownBrokerage(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db, DefaultCurrency: "usd"}
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	missing := uuid.New()

	_, err := svc.Create(context.Background(), principal(u), CreateInput{Name: "Managed", BrokerageID: &missing})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreate_InvalidCurrency(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db, DefaultCurrency: "usd"}
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	_, err := svc.Create(context.Background(), principal(u), CreateInput{Name: "X", Currency: "dollars"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGet_IndividualCannotReadOthers(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db}
	owner := testutil.CreateUser(t, db, constants.Individual, nil)
	other := testutil.CreateUser(t, db, constants.Individual, nil)
	pf := testutil.CreatePortfolio(t, db, owner.UserID, nil, "10")

	_, err := svc.Get(context.Background(), principal(other), pf.PortfolioID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err := svc.Get(context.Background(), principal(owner), pf.PortfolioID)
	require.NoError(t, err)
	assert.Equal(t, pf.PortfolioID, got.PortfolioID)
}

func TestList_BrokerSeesBrokerageClients(t *testing.T) {
	db := testutil.NewDB(t)
	svc := &Service{DB: db}
	firm := testutil.CreateBrokerage(t, db, "Acme Securities")
	broker := testutil.CreateUser(t, db, constants.Broker, &firm.BrokerageID)
	client := testutil.CreateUser(t, db, constants.Individual, nil)
	testutil.CreatePortfolio(t, db, client.UserID, &firm.BrokerageID, "0")
	testutil.CreatePortfolio(t, db, client.UserID, nil, "0")

	got, err := svc.List(context.Background(), principal(broker))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.List(context.Background(), principal(client))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAdjustBalance_InvariantAndVersion(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	pf := testutil.CreatePortfolio(t, db, u.UserID, nil, "100")

	err := db.Transaction(func(tx *gorm.DB) error {
		return AdjustBalance(tx, &pf, Delta{Available: decimal.NewFromInt(-40), Pending: decimal.NewFromInt(40)})
	})
	require.NoError(t, err)
	reloaded := testutil.ReloadPortfolio(t, db, pf.PortfolioID)
	assert.True(t, reloaded.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, reloaded.Pending.Equal(decimal.NewFromInt(40)))
	assert.True(t, reloaded.BalanceConsistent())
	assert.Equal(t, int64(1), reloaded.Version)

	err = AdjustBalance(db, &pf, Delta{Available: decimal.NewFromInt(-61), Total: decimal.NewFromInt(-61)})
	assert.True(t, apperr.KindOf(err) == apperr.KindValidation)

	stale := pf
	stale.Version = 0
	err = AdjustBalance(db, &stale, Delta{Available: decimal.NewFromInt(1), Total: decimal.NewFromInt(1)})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	err = AdjustBalance(db, &pf, Delta{Available: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
