package model

// Reference data: read-only from the billing core's point of view,
// provisioned by an out-of-scope admin layer.

// Country carries the per-minute cost of calling into it. The cost applies to
// the receiving customer's country.
type Country struct {
	ID         int64   `db:"id"`
	Name       string  `db:"name"`
	MinuteCost float64 `db:"minute_cost"`
}

type City struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	ZipCode   string `db:"zip_code"`
	CountryID int64  `db:"country_id"`
}

// Rate is a fixed monthly fee tier shared by one or more categories.
type Rate struct {
	ID   int64   `db:"id"`
	Cost float64 `db:"cost"`
}

// Category is a customer's discount tier. DiscountMtp is in (0, 1];
// lower means a bigger discount on call charges.
type Category struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	DiscountMtp float64 `db:"discount_mtp"`
	RateID      int64   `db:"rate_id"`
}
