package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// RatesRepository resolves the pricing reference data for a customer:
// the per-minute cost of the receiving side's country and the discount
// multiplier of the originating side's category. Both are read per operation;
// no caching beyond what the store provides.
type RatesRepository interface {
	// MinuteCostForCustomer walks customer -> city -> country and returns the
	// country's per-minute cost. ok is false when the chain does not resolve.
	MinuteCostForCustomer(ctx context.Context, customerID int64) (cost float64, ok bool, err error)

	// DiscountForCustomer returns the customer's category discount multiplier.
	DiscountForCustomer(ctx context.Context, customerID int64) (mtp float64, ok bool, err error)
}

type RatesRepositoryImpl struct {
	db *sqlx.DB
}

func NewRatesRepository(db *sqlx.DB) *RatesRepositoryImpl {
	return &RatesRepositoryImpl{db: db}
}

var _ RatesRepository = (*RatesRepositoryImpl)(nil)

func (r *RatesRepositoryImpl) MinuteCostForCustomer(ctx context.Context, customerID int64) (float64, bool, error) {
	var cost float64
	err := r.db.GetContext(ctx, &cost, `
		SELECT co.minute_cost
		  FROM customers cu
		  JOIN cities ci    ON ci.id = cu.city_id
		  JOIN countries co ON co.id = ci.country_id
		 WHERE cu.id = ? LIMIT 1
	`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

func (r *RatesRepositoryImpl) DiscountForCustomer(ctx context.Context, customerID int64) (float64, bool, error) {
	var mtp float64
	err := r.db.GetContext(ctx, &mtp, `
		SELECT ca.discount_mtp
		  FROM customers cu
		  JOIN categories ca ON ca.id = cu.category_id
		 WHERE cu.id = ? LIMIT 1
	`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mtp, true, nil
}
