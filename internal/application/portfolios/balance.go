package portfolios

import (
	"fmt"

	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Delta is a signed change to each balance bucket.
type Delta struct {
	Available decimal.Decimal
	Pending   decimal.Decimal
	Total     decimal.Decimal
}

// AdjustBalance applies d to pf inside tx. The write is conditional on the version pf was
// read at; a concurrent writer makes it fail with Conflict. pf is updated in place on success.
func AdjustBalance(tx *gorm.DB, pf *domain.Portfolio, d Delta) error {
	next := *pf
	next.Available = pf.Available.Add(d.Available)
	next.Pending = pf.Pending.Add(d.Pending)
	next.Total = pf.Total.Add(d.Total)
	if next.Available.IsNegative() {
		return apperr.Validation("insufficient_balance", "Insufficient available balance")
	}
	if !next.BalanceConsistent() {
		return fmt.Errorf("portfolio %s: balance invariant violated (available %s pending %s total %s)",
			pf.PortfolioID, next.Available, next.Pending, next.Total)
	}
	res := tx.Model(&domain.Portfolio{}).
		Where("portfolio_id = ? AND version = ?", pf.PortfolioID, pf.Version).
		Updates(map[string]interface{}{
			"available": next.Available,
			"pending":   next.Pending,
			"total":     next.Total,
			"version":   pf.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("concurrent_update", "Portfolio was modified concurrently, retry the request")
	}
	pf.Available, pf.Pending, pf.Total = next.Available, next.Pending, next.Total
	pf.Version++
	return nil
}

// Load reads a portfolio for update within tx.
func Load(tx *gorm.DB, id interface{}) (*domain.Portfolio, error) {
	var pf domain.Portfolio
	if err := tx.Where("portfolio_id = ?", id).First(&pf).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("portfolio_not_found", "Portfolio not found")
		}
		return nil, err
	}
	return &pf, nil
}
