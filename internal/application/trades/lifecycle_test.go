package trades

import (
	"testing"

	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_Table(t *testing.T) {
	firm := uuid.New()
	cases := []struct {
		name      string
		status    domain.TradeStatus
		brokerage bool
		action    Action
		want      domain.TradeStatus
		conflict  bool
	}{
		{"broker approves", domain.TradePendingBrokerApproval, true, BrokerApprove, domain.TradePendingClientApproval, false},
		{"client approves after broker", domain.TradePendingClientApproval, true, ClientApprove, domain.TradeCompleted, false},
		{"self-directed completes", domain.TradePending, false, ClientApprove, domain.TradeCompleted, false},
		{"client cannot skip broker", domain.TradePendingBrokerApproval, true, ClientApprove, "", true},
		{"broker cannot approve self-directed", domain.TradePending, false, BrokerApprove, "", true},
		{"broker cannot approve twice", domain.TradePendingClientApproval, true, BrokerApprove, "", true},
		{"brokerage trade never pending-direct", domain.TradePending, true, ClientApprove, "", true},
		{"cancel pending", domain.TradePending, false, Cancel, domain.TradeCancelled, false},
		{"cancel pending broker", domain.TradePendingBrokerApproval, true, Cancel, domain.TradeCancelled, false},
		{"cancel pending client", domain.TradePendingClientApproval, true, Cancel, domain.TradeCancelled, false},
		{"completed is terminal", domain.TradeCompleted, false, Cancel, "", true},
		{"cancelled is terminal", domain.TradeCancelled, true, ClientApprove, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := domain.Trade{Status: tc.status}
			if tc.brokerage {
				tr.BrokerageID = &firm
			}
			got, err := Next(tr, tc.action)
			if tc.conflict {
				require.Error(t, err)
				assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, domain.TradePendingBrokerApproval, InitialStatus(true))
	assert.Equal(t, domain.TradePending, InitialStatus(false))
}
