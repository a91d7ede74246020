package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'standard' CHECK (role IN ('standard', 'manager')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		sale_price NUMERIC(14,2) NOT NULL CHECK (sale_price >= 0),
		cost NUMERIC(14,2) NOT NULL CHECK (cost >= 0),
		stock BIGINT NOT NULL CHECK (stock >= 0),
		product_type TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		barcode TEXT UNIQUE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_products_status ON products (status);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total NUMERIC(14,2) NOT NULL CHECK (total >= 0),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'card', 'transfer'))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_line_items (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(14,2) NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_line_items_sale ON sale_line_items (sale_id);`,
	`CREATE TABLE IF NOT EXISTS branches (
		id BIGSERIAL PRIMARY KEY,
		location TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		manager_id BIGINT NOT NULL REFERENCES users(id)
	);`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'standard' CHECK (role IN ('standard', 'manager')),
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		sale_price NUMERIC NOT NULL CHECK (sale_price >= 0),
		cost NUMERIC NOT NULL CHECK (cost >= 0),
		stock INTEGER NOT NULL CHECK (stock >= 0),
		product_type TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		barcode TEXT UNIQUE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_products_status ON products (status);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL,
		total NUMERIC NOT NULL CHECK (total >= 0),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'card', 'transfer'))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_line_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC NOT NULL,
		subtotal NUMERIC NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_line_items_sale ON sale_line_items (sale_id);`,
	`CREATE TABLE IF NOT EXISTS branches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		manager_id INTEGER NOT NULL REFERENCES users(id)
	);`,
}

// Run creates the schema for the connected driver. Every statement is
// idempotent, so Run is safe on every start.
func Run(ctx context.Context, db *sqlx.DB) error {
	var schema []string
	switch db.DriverName() {
	case "pgx", "postgres":
		schema = postgresSchema
	case "sqlite", "sqlite3":
		schema = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
