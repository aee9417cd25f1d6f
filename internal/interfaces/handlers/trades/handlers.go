package trades

import (
	"context"

	"brokerdesk-backend/internal/application/policies/access"
	tradesvc "brokerdesk-backend/internal/application/trades"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *tradesvc.Service
}

// createRequest accepts decimals as JSON strings or numbers.
type createRequest struct {
	PortfolioID string           `json:"portfolio_id" validate:"required,uuid"`
	Symbol      string           `json:"symbol" validate:"required"`
	Side        string           `json:"side" validate:"required"`
	OrderType   string           `json:"order_type" validate:"required"`
	TimeInForce string           `json:"time_in_force"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	LimitPrice  *decimal.Decimal `json:"limit_price"`
	StopPrice   *decimal.Decimal `json:"stop_price"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Create POST /api/v1/trades
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in createRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Create(c.UserContext(), middleware.CurrentPrincipal(c), tradesvc.CreateInput{
		PortfolioID: uuid.MustParse(in.PortfolioID),
		Symbol:      in.Symbol,
		Side:        in.Side,
		OrderType:   in.OrderType,
		TimeInForce: in.TimeInForce,
		Quantity:    in.Quantity,
		Price:       in.Price,
		LimitPrice:  in.LimitPrice,
		StopPrice:   in.StopPrice,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Trade submitted", t, nil)
}

// List GET /api/v1/trades?portfolio_id=&status=&limit=&offset=
func (h *Handlers) List(c *fiber.Ctx) error {
	pid, err := request.OptionalUUIDQuery(c, "portfolio_id")
	if err != nil {
		return response.FromError(c, err)
	}
	limit, offset := request.Page(c, 50, 200)
	out, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c), tradesvc.ListFilter{
		PortfolioID: pid, Status: c.Query("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Trades retrieved", out, fiber.Map{"limit": limit, "offset": offset})
}

// Get GET /api/v1/trades/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	return h.act(c, "Trade retrieved", h.Service.Get)
}

// Endorse POST /api/v1/trades/:id/endorse
func (h *Handlers) Endorse(c *fiber.Ctx) error {
	return h.act(c, "Trade endorsed", h.Service.Endorse)
}

// BrokerApprove POST /api/v1/trades/:id/broker-approve
func (h *Handlers) BrokerApprove(c *fiber.Ctx) error {
	return h.act(c, "Trade approved by broker", h.Service.BrokerApprove)
}

// ClientApprove POST /api/v1/trades/:id/client-approve
func (h *Handlers) ClientApprove(c *fiber.Ctx) error {
	return h.act(c, "Trade completed", h.Service.ClientApprove)
}

// Cancel POST /api/v1/trades/:id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in cancelRequest
	if len(c.Body()) > 0 {
		if err := request.Body(c, &in); err != nil {
			return response.FromError(c, err)
		}
	}
	t, err := h.Service.Cancel(c.UserContext(), middleware.CurrentPrincipal(c), id, in.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Trade cancelled", t, nil)
}

func (h *Handlers) act(c *fiber.Ctx, message string, fn func(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Trade, error)) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	t, err := fn(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, message, t, nil)
}
