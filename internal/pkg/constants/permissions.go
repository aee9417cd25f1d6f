package constants

const (
	PlaceTrade             = "place_trade"
	ApproveTrade           = "approve_trade"
	EndorseTrade           = "endorse_trade"
	Deposit                = "deposit"
	Withdraw               = "withdraw"
	ProcessWithdrawal      = "process_withdrawal"
	ViewAuditLogs          = "view_audit_logs"
	AssignRole             = "assign_role"
	ManageBrokerages       = "manage_brokerages"
	ManageBrokerageMembers = "manage_brokerage_members"
	ManageTickets          = "manage_tickets"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	PlaceTrade:             {Individual, BrokerPending, Broker, BrokerSenior, SuperAdmin},
	ApproveTrade:           {Broker, BrokerSenior},
	EndorseTrade:           {BrokerSenior},
	Deposit:                {Individual, BrokerPending, Broker, BrokerSenior, SuperAdmin},
	Withdraw:               {Individual, BrokerPending, Broker, BrokerSenior, SuperAdmin},
	ProcessWithdrawal:      {BrokerSenior, SuperAdmin},
	ViewAuditLogs:          {Audit, SuperAdmin},
	AssignRole:             {SuperAdmin},
	ManageBrokerages:       {SuperAdmin},
	ManageBrokerageMembers: {BrokerSenior, SuperAdmin},
	ManageTickets:          {Support, SuperAdmin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
