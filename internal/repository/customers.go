package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// CustomersRepository exposes the customer reads the call lifecycle needs.
type CustomersRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
	PhoneNumberCount(ctx context.Context, customerID int64) (int, error)
}

type CustomersRepositoryImpl struct {
	db *sqlx.DB
}

func NewCustomersRepository(db *sqlx.DB) *CustomersRepositoryImpl {
	return &CustomersRepositoryImpl{db: db}
}

var _ CustomersRepository = (*CustomersRepositoryImpl)(nil)

func (r *CustomersRepositoryImpl) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, `SELECT 1 FROM customers WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *CustomersRepositoryImpl) PhoneNumberCount(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM phone_numbers WHERE customer_id = ?
	`, customerID)
	return n, err
}
