package model

// Customer belongs to one city (billing locale) and one category (discount tier).
type Customer struct {
	ID         int64  `db:"id"`
	Fullname   string `db:"fullname"`
	Passport   string `db:"passport"`
	CityID     int64  `db:"city_id"`
	CategoryID int64  `db:"category_id"`
}

// PhoneNumber is one of a customer's registered numbers.
type PhoneNumber struct {
	ID         int64  `db:"id"`
	Number     string `db:"number"`
	CustomerID int64  `db:"customer_id"`
}
