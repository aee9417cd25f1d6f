// Package trades implements trade requests and their approval lifecycle.
package trades

import (
	"context"
	"errors"
	"strings"
	"time"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/events"
	"brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/application/portfolios"
	"brokerdesk-backend/internal/application/realtime"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Notifier delivers a push message to a user's devices.
type Notifier interface {
	Notify(userID uuid.UUID, msg notifications.Message)
}

type Service struct {
	DB *gorm.DB
	// LargeTradeThreshold is the notional above which a senior broker must be recorded in approved_by.
	LargeTradeThreshold decimal.Decimal
	Events              *events.Fanout
	Notifier            Notifier
}

type CreateInput struct {
	PortfolioID uuid.UUID
	Symbol      string
	Side        string
	OrderType   string
	TimeInForce string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
}

type ListFilter struct {
	PortfolioID *uuid.UUID
	Status      string
	Limit       int
	Offset      int
}

func validateOrder(in *CreateInput) error {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	if !validation.IsValidSymbol(in.Symbol) {
		return apperr.Validation("invalid_symbol", "Invalid ticker symbol")
	}
	if in.Side != domain.SideBuy && in.Side != domain.SideSell {
		return apperr.Validation("invalid_side", "side must be one of: buy sell")
	}
	if in.TimeInForce == "" {
		in.TimeInForce = domain.TIFDay
	}
	switch in.TimeInForce {
	case domain.TIFDay, domain.TIFGTC, domain.TIFIOC, domain.TIFFOK:
	default:
		return apperr.Validation("invalid_time_in_force", "time_in_force must be one of: day gtc ioc fok")
	}
	if !in.Quantity.IsPositive() {
		return apperr.Validation("non_positive_quantity", "quantity must be a positive number")
	}
	if !in.Price.IsPositive() {
		return apperr.Validation("non_positive_price", "price must be a positive number")
	}
	needLimit, needStop := false, false
	switch in.OrderType {
	case domain.OrderMarket:
	case domain.OrderLimit:
		needLimit = true
	case domain.OrderStop:
		needStop = true
	case domain.OrderStopLimit:
		needLimit, needStop = true, true
	default:
		return apperr.Validation("invalid_order_type", "order_type must be one of: market limit stop stop_limit")
	}
	if needLimit && (in.LimitPrice == nil || !in.LimitPrice.IsPositive()) {
		return apperr.Validation("limit_price_required", "limit_price is required for "+in.OrderType+" orders")
	}
	if needStop && (in.StopPrice == nil || !in.StopPrice.IsPositive()) {
		return apperr.Validation("stop_price_required", "stop_price is required for "+in.OrderType+" orders")
	}
	if !needLimit {
		in.LimitPrice = nil
	}
	if !needStop {
		in.StopPrice = nil
	}
	return nil
}

// Create submits a trade against a portfolio the caller may write to.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (*domain.Trade, error) {
	if err := validateOrder(&in); err != nil {
		return nil, err
	}
	var trade domain.Trade
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pf, err := portfolios.Load(tx, in.PortfolioID)
		if err != nil {
			return err
		}
		if err := access.Require(p, access.PortfolioResource(*pf), access.Write); err != nil {
			return err
		}
		trade = domain.Trade{
			PortfolioID: pf.PortfolioID,
			UserID:      pf.UserID,
			BrokerageID: pf.BrokerageID,
			Symbol:      in.Symbol,
			Side:        in.Side,
			OrderType:   in.OrderType,
			TimeInForce: in.TimeInForce,
			Quantity:    in.Quantity,
			Price:       in.Price,
			LimitPrice:  in.LimitPrice,
			StopPrice:   in.StopPrice,
			Status:      InitialStatus(pf.BrokerageID != nil),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "trade.create", TargetType: access.KindTrade, TargetID: trade.TradeID,
			After: trade,
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, trade, "")
	return &trade, nil
}

func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Trade, error) {
	t, err := loadTrade(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.TradeResource(*t), access.Read); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns trades newest first, for one portfolio or for everything the caller can see.
func (s *Service) List(ctx context.Context, p access.Principal, f ListFilter) ([]domain.Trade, error) {
	db := s.DB.WithContext(ctx)
	q := db.Model(&domain.Trade{})
	if f.PortfolioID != nil {
		pf, err := portfolios.Load(db, *f.PortfolioID)
		if err != nil {
			return nil, err
		}
		if err := access.Require(p, access.PortfolioResource(*pf), access.Read); err != nil {
			return nil, err
		}
		q = q.Where("portfolio_id = ?", pf.PortfolioID)
	} else {
		q = access.ListScope(p, access.KindTrade).Apply(q)
	}
	if f.Status != "" {
		if !domain.ValidTradeStatus(f.Status) {
			return nil, apperr.Validation("invalid_status", "Unknown trade status")
		}
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.Trade
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

// Endorse records a senior broker in approved_by without moving the trade.
func (s *Service) Endorse(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Trade, error) {
	if p.Role != constants.BrokerSenior {
		return nil, apperr.Forbidden("senior_broker_only", "Only a senior broker can endorse trades")
	}
	var trade domain.Trade
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTrade(tx, id)
		if err != nil {
			return err
		}
		if err := requireBrokerOf(p, *t); err != nil {
			return err
		}
		if t.Status != domain.TradePendingBrokerApproval {
			return apperr.Conflict("invalid_transition", "Only trades awaiting broker approval can be endorsed")
		}
		if t.ApprovedBy != nil {
			return apperr.Conflict("already_endorsed", "Trade already carries a senior approval")
		}
		res := tx.Model(&domain.Trade{}).
			Where("trade_id = ? AND status = ? AND approved_by IS NULL", t.TradeID, t.Status).
			Update("approved_by", p.UserID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_trade", "Trade was modified concurrently")
		}
		t.ApprovedBy = &p.UserID
		trade = *t
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "trade.endorse", TargetType: access.KindTrade, TargetID: t.TradeID,
			Before: statusSnapshot{Status: t.Status}, After: statusSnapshot{Status: t.Status, ApprovedBy: t.ApprovedBy},
		})
	})
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// BrokerApprove moves a brokerage trade to the client for final approval.
func (s *Service) BrokerApprove(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Trade, error) {
	if !constants.IsBroker(p.Role) {
		return nil, apperr.Forbidden("broker_only", "Only brokers can approve trades")
	}
	var trade domain.Trade
	var prior domain.TradeStatus
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTrade(tx, id)
		if err != nil {
			return err
		}
		next, err := Next(*t, BrokerApprove)
		if err != nil {
			return err
		}
		if err := requireBrokerOf(p, *t); err != nil {
			return err
		}
		approvedBy := t.ApprovedBy
		if s.isLarge(*t) {
			if approvedBy == nil && p.Role == constants.BrokerSenior {
				approvedBy = &p.UserID
			}
			if approvedBy == nil {
				return apperr.Forbidden("senior_approval_required",
					"Trades above "+s.LargeTradeThreshold.String()+" notional require a senior broker approval")
			}
			if err := requireSenior(tx, *approvedBy, *t.BrokerageID); err != nil {
				return err
			}
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":             next,
			"broker_approved_by": p.UserID,
			"updated_at":         now,
		}
		if approvedBy != nil {
			updates["approved_by"] = *approvedBy
		}
		res := tx.Model(&domain.Trade{}).
			Where("trade_id = ? AND status = ?", t.TradeID, t.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_trade", "Trade was modified concurrently")
		}
		prior = t.Status
		t.Status, t.BrokerApprovedBy, t.ApprovedBy = next, &p.UserID, approvedBy
		trade = *t
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "trade.broker_approve", TargetType: access.KindTrade, TargetID: t.TradeID,
			Before: statusSnapshot{Status: prior}, After: statusSnapshot{Status: next, ApprovedBy: approvedBy},
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, trade, prior)
	s.notify(trade, "Trade awaiting your approval", trade.Side+" "+trade.Quantity.String()+" "+trade.Symbol+" was approved by your broker")
	return &trade, nil
}

// ClientApprove executes the trade: status, position and balance change in one transaction.
func (s *Service) ClientApprove(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Trade, error) {
	var trade domain.Trade
	var prior domain.TradeStatus
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTrade(tx, id)
		if err != nil {
			return err
		}
		if t.UserID != p.UserID {
			return apperr.Forbidden("owner_only", "Only the portfolio owner can approve this trade")
		}
		next, err := Next(*t, ClientApprove)
		if err != nil {
			return err
		}
		pf, err := portfolios.Load(tx, t.PortfolioID)
		if err != nil {
			return err
		}
		if t.BrokerageID != nil && !sameID(t.BrokerageID, pf.BrokerageID) {
			return apperr.Conflict("brokerage_mismatch", "Portfolio is no longer managed by the trade's brokerage")
		}
		before := *pf
		if err := applyFill(tx, pf, *t); err != nil {
			return err
		}
		now := time.Now()
		res := tx.Model(&domain.Trade{}).
			Where("trade_id = ? AND status = ?", t.TradeID, t.Status).
			Updates(map[string]interface{}{"status": next, "completed_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_trade", "Trade was modified concurrently")
		}
		prior = t.Status
		t.Status, t.CompletedAt = next, &now
		trade = *t
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "trade.complete", TargetType: access.KindTrade, TargetID: t.TradeID,
			Before: fillSnapshot{Status: prior, Available: before.Available, Total: before.Total},
			After:  fillSnapshot{Status: next, Available: pf.Available, Total: pf.Total},
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, trade, prior)
	s.Events.Emit(ctx, realtime.PortfolioTopic(trade.PortfolioID),
		events.New(events.PortfolioBalanceChanged, trade.UserID, map[string]string{"portfolio_id": trade.PortfolioID.String()}))
	s.notify(trade, "Trade completed", trade.Side+" "+trade.Quantity.String()+" "+trade.Symbol+" at "+trade.Price.String())
	return &trade, nil
}

// Cancel stops a non-terminal trade. Holdings and balance are untouched.
func (s *Service) Cancel(ctx context.Context, p access.Principal, id uuid.UUID, reason string) (*domain.Trade, error) {
	var trade domain.Trade
	var prior domain.TradeStatus
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTrade(tx, id)
		if err != nil {
			return err
		}
		if err := access.Require(p, access.TradeResource(*t), access.Write); err != nil {
			return err
		}
		next, err := Next(*t, Cancel)
		if err != nil {
			return err
		}
		now := time.Now()
		updates := map[string]interface{}{"status": next, "cancelled_at": now, "updated_at": now}
		if r := strings.TrimSpace(reason); r != "" {
			updates["cancel_reason"] = r
			t.CancelReason = &r
		}
		res := tx.Model(&domain.Trade{}).Where("trade_id = ? AND status = ?", t.TradeID, t.Status).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("stale_trade", "Trade was modified concurrently")
		}
		prior = t.Status
		t.Status, t.CancelledAt = next, &now
		trade = *t
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "trade.cancel", TargetType: access.KindTrade, TargetID: t.TradeID,
			Before: statusSnapshot{Status: prior}, After: statusSnapshot{Status: next},
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, trade, prior)
	if trade.UserID != p.UserID {
		s.notify(trade, "Trade cancelled", trade.Side+" "+trade.Quantity.String()+" "+trade.Symbol+" was cancelled")
	}
	return &trade, nil
}

type statusSnapshot struct {
	Status     domain.TradeStatus `json:"status"`
	ApprovedBy *uuid.UUID         `json:"approved_by,omitempty"`
}

type fillSnapshot struct {
	Status    domain.TradeStatus `json:"status"`
	Available decimal.Decimal    `json:"available"`
	Total     decimal.Decimal    `json:"total"`
}

func (s *Service) isLarge(t domain.Trade) bool {
	return s.LargeTradeThreshold.IsPositive() && t.Notional().GreaterThan(s.LargeTradeThreshold)
}

func loadTrade(tx *gorm.DB, id uuid.UUID) (*domain.Trade, error) {
	var t domain.Trade
	if err := tx.Where("trade_id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("trade_not_found", "Trade not found")
		}
		return nil, err
	}
	return &t, nil
}

// requireBrokerOf checks that p is staff of the trade's brokerage and not its owner.
func requireBrokerOf(p access.Principal, t domain.Trade) error {
	if t.BrokerageID == nil || !sameID(p.BrokerageID, t.BrokerageID) {
		return apperr.Forbidden("not_trade_brokerage", "Trade is not managed by your brokerage")
	}
	if err := access.Require(p, access.TradeResource(t), access.Write); err != nil {
		return err
	}
	if t.UserID == p.UserID {
		return apperr.Forbidden("self_approval", "Brokers cannot approve their own trades")
	}
	return nil
}

// requireSenior checks the recorded approver is still a senior broker of the brokerage.
func requireSenior(tx *gorm.DB, userID, brokerageID uuid.UUID) error {
	var u domain.User
	err := tx.Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Forbidden("senior_approval_required", "Recorded approver no longer exists")
	}
	if err != nil {
		return err
	}
	if u.Role != constants.BrokerSenior || !sameID(u.BrokerageID, &brokerageID) || u.Status != domain.UserActive {
		return apperr.Forbidden("senior_approval_required", "Recorded approver is not a senior broker of this brokerage")
	}
	return nil
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Service) publish(ctx context.Context, t domain.Trade, prior domain.TradeStatus) {
	s.Events.Emit(ctx, realtime.PortfolioTopic(t.PortfolioID), events.New(events.TradeStatusChanged, t.UserID, map[string]interface{}{
		"trade_id":     t.TradeID,
		"portfolio_id": t.PortfolioID,
		"from":         prior,
		"to":           t.Status,
	}))
}

func (s *Service) notify(t domain.Trade, title, body string) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(t.UserID, notifications.Message{
		Title: title,
		Body:  body,
		Data:  map[string]string{"trade_id": t.TradeID.String(), "status": string(t.Status)},
	})
}
