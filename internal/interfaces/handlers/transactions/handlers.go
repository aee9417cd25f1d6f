package transactions

import (
	txsvc "brokerdesk-backend/internal/application/transactions"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *txsvc.Service
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type processRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Reason  string `json:"reason" validate:"max=500"`
}

// Deposit POST /api/v1/portfolios/:id/deposits. The balance moves when the payment webhook
// confirms the checkout.
func (h *Handlers) Deposit(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in amountRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	amount, err := validation.PositiveAmount("amount", in.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Service.Deposit(c.UserContext(), middleware.CurrentPrincipal(c), id, amount)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Checkout created", res, nil)
}

// Withdraw POST /api/v1/portfolios/:id/withdrawals
func (h *Handlers) Withdraw(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in amountRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	amount, err := validation.PositiveAmount("amount", in.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Withdraw(c.UserContext(), middleware.CurrentPrincipal(c), id, amount)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Withdrawal requested", t, nil)
}

// List GET /api/v1/portfolios/:id/transactions?type=&status=&limit=&offset=
func (h *Handlers) List(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	limit, offset := request.Page(c, 50, 200)
	out, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c), id, txsvc.ListFilter{
		Type: c.Query("type"), Status: c.Query("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transactions retrieved", out, fiber.Map{"limit": limit, "offset": offset})
}

// Get GET /api/v1/transactions/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Get(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction retrieved", t, nil)
}

// Process POST /api/v1/transactions/:id/process approves or rejects a pending withdrawal.
func (h *Handlers) Process(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in processRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.ProcessWithdrawal(c.UserContext(), middleware.CurrentPrincipal(c), id, *in.Approve, in.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal processed", t, nil)
}

// Cancel POST /api/v1/transactions/:id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.CancelWithdrawal(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal cancelled", t, nil)
}
