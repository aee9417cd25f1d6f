package trades

import (
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
)

type Action string

const (
	BrokerApprove Action = "broker_approve"
	ClientApprove Action = "client_approve"
	Cancel        Action = "cancel"
)

type edge struct {
	from   domain.TradeStatus
	action Action
}

var transitions = map[edge]domain.TradeStatus{
	{domain.TradePendingBrokerApproval, BrokerApprove}: domain.TradePendingClientApproval,
	{domain.TradePendingClientApproval, ClientApprove}: domain.TradeCompleted,
	{domain.TradePending, ClientApprove}:               domain.TradeCompleted,
}

// InitialStatus is where a new trade starts.
func InitialStatus(brokerageManaged bool) domain.TradeStatus {
	if brokerageManaged {
		return domain.TradePendingBrokerApproval
	}
	return domain.TradePending
}

// Next returns the status t moves to under a, or Conflict when a is not allowed from t's status.
// A brokerage trade can never take the direct pending → completed path.
func Next(t domain.Trade, a Action) (domain.TradeStatus, error) {
	if t.Status.Terminal() {
		return "", apperr.Conflict("trade_terminal", "Trade is already "+string(t.Status))
	}
	if a == Cancel {
		return domain.TradeCancelled, nil
	}
	if t.Status == domain.TradePending && t.BrokerageID != nil {
		return "", apperr.Conflict("broker_approval_required", "Brokerage trades require broker approval")
	}
	next, ok := transitions[edge{t.Status, a}]
	if !ok {
		return "", apperr.Conflict("invalid_transition", "Cannot "+string(a)+" a trade that is "+string(t.Status))
	}
	return next, nil
}
