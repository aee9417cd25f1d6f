// Package access decides whether a request-scoped principal may read or mutate a resource.
// Every handler consults it; role strings are not compared anywhere else.
package access

import (
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Mode int

const (
	Read Mode = iota
	Write
)

type Kind string

const (
	KindUser        Kind = "user"
	KindBrokerage   Kind = "brokerage"
	KindPortfolio   Kind = "portfolio"
	KindTrade       Kind = "trade"
	KindTransaction Kind = "transaction"
	KindAuditLog    Kind = "audit_log"
	KindTicket      Kind = "support_ticket"
	KindDocument    Kind = "document"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	UserID      uuid.UUID
	Role        string
	BrokerageID *uuid.UUID
}

func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}

// Resource is what the predicate inspects: who owns it and which brokerage manages it.
type Resource struct {
	Kind        Kind
	OwnerID     uuid.UUID
	BrokerageID *uuid.UUID
}

func UserResource(u domain.User) Resource {
	return Resource{Kind: KindUser, OwnerID: u.UserID, BrokerageID: u.BrokerageID}
}

func BrokerageResource(b domain.BrokerageFirm) Resource {
	id := b.BrokerageID
	return Resource{Kind: KindBrokerage, BrokerageID: &id}
}

func PortfolioResource(p domain.Portfolio) Resource {
	return Resource{Kind: KindPortfolio, OwnerID: p.UserID, BrokerageID: p.BrokerageID}
}

func TradeResource(t domain.Trade) Resource {
	return Resource{Kind: KindTrade, OwnerID: t.UserID, BrokerageID: t.BrokerageID}
}

// TransactionResource takes the portfolio because transactions inherit its brokerage.
func TransactionResource(t domain.Transaction, p domain.Portfolio) Resource {
	return Resource{Kind: KindTransaction, OwnerID: t.UserID, BrokerageID: p.BrokerageID}
}

func TicketResource(t domain.SupportTicket) Resource {
	return Resource{Kind: KindTicket, OwnerID: t.UserID}
}

func DocumentResource(d domain.Document) Resource {
	return Resource{Kind: KindDocument, OwnerID: d.UserID}
}

func AuditLogResource() Resource {
	return Resource{Kind: KindAuditLog}
}

// CanAccess reports whether p may touch r in the given mode.
func CanAccess(p Principal, r Resource, mode Mode) bool {
	if p.IsZero() {
		return false
	}
	switch p.Role {
	case constants.SuperAdmin:
		return true
	case constants.Audit:
		return mode == Read
	}
	if r.Kind == KindAuditLog {
		return false
	}
	if p.Role == constants.Support && r.Kind == KindTicket {
		return true
	}
	if r.OwnerID != uuid.Nil && r.OwnerID == p.UserID {
		return true
	}
	return constants.IsBroker(p.Role) && sameBrokerage(p.BrokerageID, r.BrokerageID)
}

// Require is CanAccess as an error: Forbidden when the predicate is false.
func Require(p Principal, r Resource, mode Mode) error {
	if p.IsZero() {
		return apperr.Unauthorized("Unauthorized")
	}
	if !CanAccess(p, r, mode) {
		return apperr.Forbidden("forbidden", "You do not have access to this "+string(r.Kind))
	}
	return nil
}

func sameBrokerage(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a != uuid.Nil && *a == *b
}

// Scope is the row restriction a list query must apply for a principal.
type Scope struct {
	All         bool
	None        bool
	UserID      uuid.UUID
	BrokerageID *uuid.UUID
}

// ListScope mirrors CanAccess(Read) for collections.
func ListScope(p Principal, kind Kind) Scope {
	switch {
	case p.IsZero():
		return Scope{None: true}
	case p.Role == constants.SuperAdmin, p.Role == constants.Audit:
		return Scope{All: true}
	case kind == KindAuditLog:
		return Scope{None: true}
	case kind == KindTicket && p.Role == constants.Support:
		return Scope{All: true}
	}
	s := Scope{UserID: p.UserID}
	if constants.IsBroker(p.Role) && p.BrokerageID != nil && (kind == KindPortfolio || kind == KindTrade) {
		id := *p.BrokerageID
		s.BrokerageID = &id
	}
	return s
}

// Apply restricts q on its user_id and brokerage_id columns.
func (s Scope) Apply(q *gorm.DB) *gorm.DB {
	switch {
	case s.None:
		return q.Where("1 = 0")
	case s.All:
		return q
	case s.BrokerageID != nil:
		return q.Where("user_id = ? OR brokerage_id = ?", s.UserID, *s.BrokerageID)
	default:
		return q.Where("user_id = ?", s.UserID)
	}
}
