package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedRole(t *testing.T) {
	assert.True(t, AllowedRole(ApproveTrade, Broker))
	assert.True(t, AllowedRole(EndorseTrade, BrokerSenior))
	assert.False(t, AllowedRole(EndorseTrade, Broker))
	assert.False(t, AllowedRole(ViewAuditLogs, Individual))
	assert.False(t, AllowedRole("unknown", SuperAdmin))
}

func TestEveryPermissionHasRoles(t *testing.T) {
	for perm, roles := range PermissionRoles {
		assert.NotEmpty(t, roles, perm)
		for _, r := range roles {
			assert.True(t, IsValidRole(r), "%s grants unknown role %s", perm, r)
		}
	}
}
