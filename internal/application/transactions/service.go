// Package transactions handles deposits through hosted checkout and withdrawal requests.
package transactions

import (
	"context"
	"errors"
	"strings"
	"time"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/emails"
	"brokerdesk-backend/internal/application/events"
	"brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/application/portfolios"
	"brokerdesk-backend/internal/application/realtime"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Notifier interface {
	Notify(userID uuid.UUID, msg notifications.Message)
}

type Service struct {
	DB       *gorm.DB
	Checkout CheckoutCreator
	Events   *events.Fanout
	Notifier Notifier
	Emails   emails.Sender
	Async    async.Runner
}

// System is the actor recorded for provider-driven changes (payment webhooks).
var System = access.Principal{Role: "system"}

var hundred = decimal.NewFromInt(100)

type DepositResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	CheckoutURL string              `json:"checkout_url"`
}

type ListFilter struct {
	Type   string
	Status string
	Limit  int
	Offset int
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("non_positive_amount", "amount must be a positive number")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("invalid_amount", "amount cannot have more than 2 decimal places")
	}
	return nil
}

// Deposit records a pending deposit and opens a checkout session for it. The balance is only
// credited by CompleteDeposit. If the processor fails the transaction stays pending.
func (s *Service) Deposit(ctx context.Context, p access.Principal, portfolioID uuid.UUID, amount decimal.Decimal) (*DepositResult, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if s.Checkout == nil {
		return nil, apperr.Upstream("checkout_unavailable", "Payment processor is not configured", nil)
	}
	var txn domain.Transaction
	var email string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pf, err := portfolios.Load(tx, portfolioID)
		if err != nil {
			return err
		}
		if err := access.Require(p, access.PortfolioResource(*pf), access.Write); err != nil {
			return err
		}
		var owner domain.User
		switch err := tx.Select("email").Where("user_id = ?", pf.UserID).First(&owner).Error; {
		case err == nil:
			email = owner.Email
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		txn = domain.Transaction{
			PortfolioID: pf.PortfolioID,
			UserID:      pf.UserID,
			Type:        domain.TxDeposit,
			Amount:      amount,
			Currency:    pf.Currency,
			Status:      domain.TxPending,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "transaction.deposit_requested", TargetType: access.KindTransaction,
			TargetID: txn.TransactionID, After: txn,
		})
	})
	if err != nil {
		return nil, err
	}

	session, err := s.Checkout.CreateCheckout(ctx, CheckoutRequest{
		AmountCents:   amount.Mul(hundred).IntPart(),
		Currency:      txn.Currency,
		Description:   "Portfolio deposit",
		CustomerEmail: email,
		Metadata: map[string]string{
			"transaction_id": txn.TransactionID.String(),
			"portfolio_id":   txn.PortfolioID.String(),
			"user_id":        txn.UserID.String(),
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", txn.TransactionID.String()).Msg("checkout session creation failed")
		return nil, apperr.Upstream("checkout_failed", "Could not start checkout, the deposit remains pending", err)
	}
	if err := s.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where("transaction_id = ?", txn.TransactionID).
		Update("checkout_session_id", session.ID).Error; err != nil {
		log.Error().Err(err).Str("transaction_id", txn.TransactionID.String()).Str("session_id", session.ID).
			Msg("checkout session id not stored; the webhook will bind it")
		return nil, err
	}
	txn.CheckoutSessionID = &session.ID
	return &DepositResult{Transaction: &txn, CheckoutURL: session.URL}, nil
}

// CompleteDeposit settles a deposit reported paid by the processor. Status and balance change
// together. Re-delivery for an already completed deposit is a no-op.
func (s *Service) CompleteDeposit(ctx context.Context, sessionID string, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txn *domain.Transaction
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTransaction(tx, transactionID)
		if err != nil {
			return err
		}
		txn = t
		if err := matchSession(tx, t, sessionID); err != nil {
			return err
		}
		switch t.Status {
		case domain.TxCompleted:
			return nil
		case domain.TxPending:
		default:
			return apperr.Conflict("transaction_immutable", "Deposit is already "+string(t.Status))
		}
		pf, err := portfolios.Load(tx, t.PortfolioID)
		if err != nil {
			return err
		}
		if err := portfolios.AdjustBalance(tx, pf, portfolios.Delta{Available: t.Amount, Total: t.Amount}); err != nil {
			return err
		}
		if err := settle(tx, t, domain.TxCompleted, "", nil); err != nil {
			return err
		}
		changed = true
		return audit.Record(tx, audit.Entry{
			Actor: System, Action: "transaction.deposit_completed", TargetType: access.KindTransaction,
			TargetID: t.TransactionID,
			Before:   statusSnapshot{Status: domain.TxPending},
			After:    statusSnapshot{Status: domain.TxCompleted, Available: &pf.Available, Total: &pf.Total},
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.announce(ctx, *txn, "Deposit received", txn.Amount.StringFixed(2)+" "+strings.ToUpper(txn.Currency)+" is now available")
	}
	return txn, nil
}

// FailDeposit marks a pending deposit failed (expired or declined checkout). Balance is untouched.
func (s *Service) FailDeposit(ctx context.Context, sessionID string, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	var txn *domain.Transaction
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTransaction(tx, transactionID)
		if err != nil {
			return err
		}
		txn = t
		if err := matchSession(tx, t, sessionID); err != nil {
			return err
		}
		switch t.Status {
		case domain.TxFailed:
			return nil
		case domain.TxPending:
		default:
			return apperr.Conflict("transaction_immutable", "Deposit is already "+string(t.Status))
		}
		if err := settle(tx, t, domain.TxFailed, reason, nil); err != nil {
			return err
		}
		changed = true
		return audit.Record(tx, audit.Entry{
			Actor: System, Action: "transaction.deposit_failed", TargetType: access.KindTransaction,
			TargetID: t.TransactionID,
			Before:   statusSnapshot{Status: domain.TxPending},
			After:    statusSnapshot{Status: domain.TxFailed, Reason: reason},
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.announce(ctx, *txn, "Deposit failed", "Your deposit of "+txn.Amount.StringFixed(2)+" "+strings.ToUpper(txn.Currency)+" did not complete")
	}
	return txn, nil
}

// Withdraw reserves the amount (available → pending) and records a pending withdrawal.
func (s *Service) Withdraw(ctx context.Context, p access.Principal, portfolioID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	var txn domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pf, err := portfolios.Load(tx, portfolioID)
		if err != nil {
			return err
		}
		if err := access.Require(p, access.PortfolioResource(*pf), access.Write); err != nil {
			return err
		}
		if amount.GreaterThan(pf.Available) {
			return apperr.Validation("insufficient_balance", "Withdrawal exceeds available balance")
		}
		if err := portfolios.AdjustBalance(tx, pf, portfolios.Delta{Available: amount.Neg(), Pending: amount}); err != nil {
			return err
		}
		txn = domain.Transaction{
			PortfolioID: pf.PortfolioID,
			UserID:      pf.UserID,
			Type:        domain.TxWithdrawal,
			Amount:      amount,
			Currency:    pf.Currency,
			Status:      domain.TxPending,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "transaction.withdrawal_requested", TargetType: access.KindTransaction,
			TargetID: txn.TransactionID, After: txn,
		})
	})
	if err != nil {
		return nil, err
	}
	s.emitBalance(ctx, txn)
	return &txn, nil
}

// ProcessWithdrawal approves (funds leave) or rejects (funds return to available) a pending withdrawal.
// Super-admins may process any; senior brokers only those of portfolios their brokerage manages.
func (s *Service) ProcessWithdrawal(ctx context.Context, p access.Principal, transactionID uuid.UUID, approve bool, reason string) (*domain.Transaction, error) {
	if p.Role != constants.SuperAdmin && p.Role != constants.BrokerSenior {
		return nil, apperr.Forbidden("withdrawal_approver_only", "Only a senior broker or super-admin can process withdrawals")
	}
	var txn *domain.Transaction
	var owner domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadWithdrawal(tx, transactionID)
		if err != nil {
			return err
		}
		pf, err := portfolios.Load(tx, t.PortfolioID)
		if err != nil {
			return err
		}
		if p.Role == constants.BrokerSenior && !sameID(p.BrokerageID, pf.BrokerageID) {
			return apperr.Forbidden("not_portfolio_brokerage", "Portfolio is not managed by your brokerage")
		}
		if t.UserID == p.UserID {
			return apperr.Forbidden("self_approval", "You cannot process your own withdrawal")
		}
		if t.Status != domain.TxPending {
			return apperr.Conflict("transaction_immutable", "Withdrawal is already "+string(t.Status))
		}
		status, delta, action := domain.TxFailed, portfolios.Delta{Pending: t.Amount.Neg(), Available: t.Amount}, "transaction.withdrawal_rejected"
		if approve {
			status, delta, action = domain.TxCompleted, portfolios.Delta{Pending: t.Amount.Neg(), Total: t.Amount.Neg()}, "transaction.withdrawal_completed"
		}
		if err := portfolios.AdjustBalance(tx, pf, delta); err != nil {
			return err
		}
		if err := settle(tx, t, status, reason, &p.UserID); err != nil {
			return err
		}
		txn = t
		if err := tx.Select("email", "fullname").Where("user_id = ?", t.UserID).First(&owner).Error; err != nil &&
			!errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: action, TargetType: access.KindTransaction, TargetID: t.TransactionID,
			Before: statusSnapshot{Status: domain.TxPending},
			After:  statusSnapshot{Status: status, Reason: reason, Available: &pf.Available, Total: &pf.Total},
		})
	})
	if err != nil {
		return nil, err
	}
	title := "Withdrawal approved"
	if !approve {
		title = "Withdrawal declined"
	}
	s.announce(ctx, *txn, title, txn.Amount.StringFixed(2)+" "+strings.ToUpper(txn.Currency))
	if s.Emails != nil && owner.Email != "" {
		t := *txn
		async.Run(s.Async, "email.withdrawal", func(ctx context.Context) {
			if err := s.Emails.SendWithdrawalProcessed(ctx, owner.Email, owner.Fullname, t.Amount.StringFixed(2), strings.ToUpper(t.Currency), approve); err != nil {
				log.Warn().Err(err).Str("transaction_id", t.TransactionID.String()).Msg("withdrawal email failed")
			}
		})
	}
	return txn, nil
}

// CancelWithdrawal lets the owner withdraw a pending request; reserved funds are released.
func (s *Service) CancelWithdrawal(ctx context.Context, p access.Principal, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadWithdrawal(tx, transactionID)
		if err != nil {
			return err
		}
		if t.UserID != p.UserID {
			return apperr.Forbidden("owner_only", "Only the portfolio owner can cancel this withdrawal")
		}
		if t.Status != domain.TxPending {
			return apperr.Conflict("transaction_immutable", "Withdrawal is already "+string(t.Status))
		}
		pf, err := portfolios.Load(tx, t.PortfolioID)
		if err != nil {
			return err
		}
		if err := portfolios.AdjustBalance(tx, pf, portfolios.Delta{Pending: t.Amount.Neg(), Available: t.Amount}); err != nil {
			return err
		}
		if err := settle(tx, t, domain.TxCancelled, "", nil); err != nil {
			return err
		}
		txn = t
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "transaction.withdrawal_cancelled", TargetType: access.KindTransaction,
			TargetID: t.TransactionID,
			Before:   statusSnapshot{Status: domain.TxPending}, After: statusSnapshot{Status: domain.TxCancelled},
		})
	})
	if err != nil {
		return nil, err
	}
	s.emitBalance(ctx, *txn)
	return txn, nil
}

func (s *Service) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Transaction, error) {
	db := s.DB.WithContext(ctx)
	t, err := loadTransaction(db, id)
	if err != nil {
		return nil, err
	}
	pf, err := portfolios.Load(db, t.PortfolioID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.TransactionResource(*t, *pf), access.Read); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns a portfolio's ledger newest first.
func (s *Service) List(ctx context.Context, p access.Principal, portfolioID uuid.UUID, f ListFilter) ([]domain.Transaction, error) {
	db := s.DB.WithContext(ctx)
	pf, err := portfolios.Load(db, portfolioID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.PortfolioResource(*pf), access.Read); err != nil {
		return nil, err
	}
	q := db.Where("portfolio_id = ?", portfolioID)
	if f.Type != "" {
		if !domain.ValidTransactionType(f.Type) {
			return nil, apperr.Validation("invalid_type", "Unknown transaction type")
		}
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.Transaction
	err = q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

type statusSnapshot struct {
	Status    domain.TransactionStatus `json:"status"`
	Reason    string                   `json:"reason,omitempty"`
	Available *decimal.Decimal         `json:"available,omitempty"`
	Total     *decimal.Decimal         `json:"total,omitempty"`
}

// settle moves t out of pending. The write is conditional on t still being pending.
func settle(tx *gorm.DB, t *domain.Transaction, status domain.TransactionStatus, reason string, processedBy *uuid.UUID) error {
	now := time.Now()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	if status == domain.TxCompleted {
		updates["completed_at"] = now
		t.CompletedAt = &now
	}
	if reason != "" {
		updates["failure_reason"] = reason
		t.FailureReason = &reason
	}
	if processedBy != nil {
		updates["processed_by"] = *processedBy
		t.ProcessedBy = processedBy
	}
	res := tx.Model(&domain.Transaction{}).
		Where("transaction_id = ? AND status = ?", t.TransactionID, domain.TxPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("stale_transaction", "Transaction was modified concurrently")
	}
	t.Status = status
	return nil
}

// matchSession checks the verified session against the deposit. A pending deposit whose
// session id was never stored is bound to the session reported for it.
func matchSession(tx *gorm.DB, t *domain.Transaction, sessionID string) error {
	if t.Type != domain.TxDeposit {
		return apperr.Validation("not_a_deposit", "Transaction is not a deposit")
	}
	mismatch := apperr.Validation("session_mismatch", "Checkout session does not match the transaction")
	if sessionID == "" {
		return mismatch
	}
	if t.CheckoutSessionID != nil {
		if *t.CheckoutSessionID != sessionID {
			return mismatch
		}
		return nil
	}
	if t.Status != domain.TxPending {
		return mismatch
	}
	res := tx.Model(&domain.Transaction{}).
		Where("transaction_id = ? AND checkout_session_id IS NULL", t.TransactionID).
		Update("checkout_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("stale_transaction", "Transaction was modified concurrently")
	}
	log.Warn().Str("transaction_id", t.TransactionID.String()).Str("session_id", sessionID).
		Msg("deposit had no checkout session stored; bound to webhook session")
	t.CheckoutSessionID = &sessionID
	return nil
}

func loadTransaction(tx *gorm.DB, id uuid.UUID) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := tx.Where("transaction_id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("transaction_not_found", "Transaction not found")
		}
		return nil, err
	}
	return &t, nil
}

func loadWithdrawal(tx *gorm.DB, id uuid.UUID) (*domain.Transaction, error) {
	t, err := loadTransaction(tx, id)
	if err != nil {
		return nil, err
	}
	if t.Type != domain.TxWithdrawal {
		return nil, apperr.Validation("not_a_withdrawal", "Transaction is not a withdrawal")
	}
	return t, nil
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Service) emitBalance(ctx context.Context, t domain.Transaction) {
	s.Events.Emit(ctx, realtime.PortfolioTopic(t.PortfolioID), events.New(events.TransactionStatusChanged, t.UserID, map[string]interface{}{
		"transaction_id": t.TransactionID,
		"portfolio_id":   t.PortfolioID,
		"type":           t.Type,
		"status":         t.Status,
	}))
}

func (s *Service) announce(ctx context.Context, t domain.Transaction, title, body string) {
	s.emitBalance(ctx, t)
	if s.Notifier != nil {
		s.Notifier.Notify(t.UserID, notifications.Message{
			Title: title,
			Body:  body,
			Data:  map[string]string{"transaction_id": t.TransactionID.String(), "status": string(t.Status)},
		})
	}
}
