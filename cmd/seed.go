package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/telebill/call-billing/internal/config"
	"github.com/telebill/call-billing/internal/db"
	"github.com/telebill/call-billing/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo reference data and customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding reference data...")
		if err := seedRefData(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo customers...")
		if err := seedCustomers(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedRefData inserts deterministic countries, cities, rate plans and
// categories (idempotent).
func seedRefData(dbx *sqlx.DB) error {
	stmts := []string{
		`INSERT INTO countries (id, name, minute_cost) VALUES
			(1, 'Netherlands', 0.5),
			(2, 'Germany', 0.7),
			(3, 'Poland', 0.4)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), minute_cost = VALUES(minute_cost)`,

		`INSERT INTO cities (id, name, zip_code, country_id) VALUES
			(1, 'Amsterdam', '1011', 1),
			(2, 'Rotterdam', '3011', 1),
			(3, 'Berlin', '10115', 2),
			(4, 'Warsaw', '00-001', 3)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), zip_code = VALUES(zip_code), country_id = VALUES(country_id)`,

		`INSERT INTO rates (id, cost) VALUES
			(1, 250),
			(2, 450)
		 ON DUPLICATE KEY UPDATE cost = VALUES(cost)`,

		`INSERT INTO categories (id, name, discount_mtp, rate_id) VALUES
			(1, 'Standard', 1.0, 1),
			(2, 'Silver', 0.8, 1),
			(3, 'Gold', 0.6, 2)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), discount_mtp = VALUES(discount_mtp), rate_id = VALUES(rate_id)`,
	}
	for _, q := range stmts {
		if _, err := dbx.Exec(q); err != nil {
			return fmt.Errorf("seed reference data: %w", err)
		}
	}
	return nil
}

// seedCustomers inserts demo customers with one phone number each (idempotent).
func seedCustomers(dbx *sqlx.DB) error {
	customers := []struct {
		id       int64
		fullname string
		passport string
		cityID   int64
		catID    int64
		phone    string
	}{
		{1, "Jan de Vries", "NL1234567", 1, 1, "0031 20 555 0101"},
		{2, "Anna Bakker", "NL7654321", 2, 2, "0031 10 555 0202"},
		{3, "Max Fischer", "DE2468135", 3, 3, "0049 30 555 0303"},
		{4, "Ola Kowalska", "PL1357924", 4, 1, "0048 22 555 0404"},
	}

	for _, c := range customers {
		if _, err := dbx.Exec(`
			INSERT INTO customers (id, fullname, passport, city_id, category_id)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE fullname = VALUES(fullname), city_id = VALUES(city_id), category_id = VALUES(category_id)
		`, c.id, c.fullname, c.passport, c.cityID, c.catID); err != nil {
			return fmt.Errorf("seed customer %s: %w", c.fullname, err)
		}

		if _, err := dbx.Exec(`
			INSERT INTO phone_numbers (number, customer_id)
			VALUES (?, ?)
			ON DUPLICATE KEY UPDATE customer_id = VALUES(customer_id)
		`, util.NormalizePhone(c.phone), c.id); err != nil {
			return fmt.Errorf("seed phone number for %s: %w", c.fullname, err)
		}
	}
	return nil
}
