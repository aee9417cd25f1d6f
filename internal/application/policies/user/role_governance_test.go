package policies

import (
	"testing"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principal(u domain.User) access.Principal {
	return access.Principal{UserID: u.UserID, Role: u.Role, BrokerageID: u.BrokerageID}
}

func TestValidateRoleAssignment(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	firm := testutil.CreateBrokerage(t, db, "Acme")
	member := testutil.CreateUser(t, db, constants.BrokerPending, &firm.BrokerageID)
	loner := testutil.CreateUser(t, db, constants.Individual, nil)
	support := testutil.CreateUser(t, db, constants.Support, nil)

	assert.NoError(t, ValidateRoleAssignment(db, principal(admin), member, constants.BrokerSenior))
	assert.ErrorIs(t, ValidateRoleAssignment(db, principal(support), loner, constants.Audit), ErrOnlySuperAdminCanAssignRoles)
	assert.ErrorIs(t, ValidateRoleAssignment(db, principal(admin), loner, "wizard"), ErrInvalidRole)
	assert.ErrorIs(t, ValidateRoleAssignment(db, principal(admin), admin, constants.SuperAdmin), ErrCannotModifyOwnRole)
	assert.ErrorIs(t, ValidateRoleAssignment(db, principal(admin), loner, constants.Broker), ErrBrokerRoleNeedsBrokerage)
}

func TestValidateRoleAssignment_LastSuperAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	b := testutil.CreateUser(t, db, constants.SuperAdmin, nil)

	assert.NoError(t, ValidateRoleAssignment(db, principal(a), b, constants.Support))

	require.NoError(t, db.Model(&domain.User{}).Where("user_id = ?", a.UserID).Update("status", domain.UserSuspended).Error)
	c := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	require.NoError(t, db.Model(&domain.User{}).Where("user_id = ?", c.UserID).Update("role", constants.Individual).Error)
	// a is suspended and c demoted: b is the only active super-admin left.
	assert.ErrorIs(t, ValidateRoleAssignment(db, principal(a), b, constants.Support), ErrLastSuperAdmin)
}

func TestValidateSuspension(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	user := testutil.CreateUser(t, db, constants.Individual, nil)

	assert.NoError(t, ValidateSuspension(db, principal(admin), user))
	assert.ErrorIs(t, ValidateSuspension(db, principal(admin), admin), ErrCannotSuspendSelf)
	assert.Error(t, ValidateSuspension(db, principal(user), admin))
}

func TestLoadTarget_NotFound(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := LoadTarget(db, "00000000-0000-0000-0000-000000000001")
	assert.Error(t, err)
}
