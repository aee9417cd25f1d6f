package portfolios

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	portfoliosvc "brokerdesk-backend/internal/application/portfolios"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/application/realtime"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// streamKeepAlive is the interval of SSE comment frames that keep proxies from closing idle streams.
const streamKeepAlive = 25 * time.Second

type Handlers struct {
	Service *portfoliosvc.Service
	Hub     *realtime.Hub
}

type createRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	BrokerageID string `json:"brokerage_id" validate:"omitempty,uuid"`
}

// Create POST /api/v1/portfolios
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in createRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	ci := portfoliosvc.CreateInput{Name: in.Name, Currency: in.Currency}
	if in.BrokerageID != "" {
		id := uuid.MustParse(in.BrokerageID)
		ci.BrokerageID = &id
	}
	p, err := h.Service.Create(c.UserContext(), middleware.CurrentPrincipal(c), ci)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Portfolio created", p, nil)
}

// List GET /api/v1/portfolios
func (h *Handlers) List(c *fiber.Ctx) error {
	out, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Portfolios retrieved", out, nil)
}

// Get GET /api/v1/portfolios/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	p, err := h.Service.Get(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Portfolio retrieved", p, nil)
}

// Stream GET /api/v1/stream/portfolios/:id serves the portfolio's events as server-sent
// events. Read access is checked before the stream opens.
func (h *Handlers) Stream(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if _, err := h.Service.Authorize(c.UserContext(), middleware.CurrentPrincipal(c), id, access.Read); err != nil {
		return response.FromError(c, err)
	}
	if h.Hub == nil {
		return response.Error(c, "Live updates are unavailable", fiber.StatusServiceUnavailable, nil)
	}
	// The request context ends with the handler; the stream outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.Hub.Subscribe(ctx, realtime.PortfolioTopic(id))
	if err != nil {
		cancel()
		return response.FromError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	traceID := middleware.GetTraceID(c)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()
		fmt.Fprintf(w, ": connected %s\n\n", id)
		if w.Flush() != nil {
			return
		}
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					log.Warn().Err(err).Str("trace_id", traceID).Msg("stream: marshal event")
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
			}
			// A failed flush means the client went away.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
