package constants

const (
	Individual    = "individual"
	BrokerPending = "broker-pending"
	Broker        = "broker" // junior broker
	BrokerSenior  = "broker-senior"
	Support       = "support"
	Audit         = "audit"
	SuperAdmin    = "super-admin"
)

// ValidRoles is the set of allowed values for users.role.
var ValidRoles = []string{Individual, BrokerPending, Broker, BrokerSenior, Support, Audit, SuperAdmin}

// IsValidRole returns true if role is one of the allowed enum values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsBroker reports whether role is an active brokerage staff role.
func IsBroker(role string) bool {
	return role == Broker || role == BrokerSenior
}
