package trades

import (
	"errors"

	"brokerdesk-backend/internal/application/portfolios"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"

	"gorm.io/gorm"
)

// applyFill moves cash and shares for a completed trade. Buys debit available and total by the
// notional and blend the average price; sells require the held quantity and credit the notional.
func applyFill(tx *gorm.DB, pf *domain.Portfolio, t domain.Trade) error {
	notional := t.Notional().Round(2)

	var pos domain.Position
	err := tx.Where("portfolio_id = ? AND symbol = ?", pf.PortfolioID, t.Symbol).First(&pos).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	switch t.Side {
	case domain.SideBuy:
		if notional.GreaterThan(pf.Available) {
			return apperr.Validation("insufficient_balance", "Insufficient available balance for this trade")
		}
		if err := portfolios.AdjustBalance(tx, pf, portfolios.Delta{Available: notional.Neg(), Total: notional.Neg()}); err != nil {
			return err
		}
		if !found {
			pos = domain.Position{PortfolioID: pf.PortfolioID, Symbol: t.Symbol, Quantity: t.Quantity, AveragePrice: t.Price}
			return tx.Create(&pos).Error
		}
		qty := pos.Quantity.Add(t.Quantity)
		avg := pos.Quantity.Mul(pos.AveragePrice).Add(t.Quantity.Mul(t.Price)).DivRound(qty, 4)
		return tx.Model(&domain.Position{}).Where("position_id = ?", pos.PositionID).
			Updates(map[string]interface{}{"quantity": qty, "average_price": avg}).Error

	case domain.SideSell:
		if !found || pos.Quantity.LessThan(t.Quantity) {
			return apperr.Validation("insufficient_quantity", "Portfolio does not hold enough "+t.Symbol+" to sell")
		}
		if err := portfolios.AdjustBalance(tx, pf, portfolios.Delta{Available: notional, Total: notional}); err != nil {
			return err
		}
		qty := pos.Quantity.Sub(t.Quantity)
		if qty.IsZero() {
			return tx.Delete(&domain.Position{}, "position_id = ?", pos.PositionID).Error
		}
		return tx.Model(&domain.Position{}).Where("position_id = ?", pos.PositionID).
			Update("quantity", qty).Error
	}
	return apperr.Validation("invalid_side", "side must be one of: buy sell")
}

