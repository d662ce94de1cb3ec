package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id UUID,
		product_type VARCHAR(32) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,

	`CREATE TABLE IF NOT EXISTS product_variants (
		id UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		sku VARCHAR(64) NOT NULL UNIQUE,
		sell_mode VARCHAR(16) NOT NULL CHECK (sell_mode IN ('packaged', 'loose')),
		base_unit VARCHAR(8) NOT NULL CHECK (base_unit IN ('kg', 'L', 'pcs')),
		buying_price NUMERIC(18,4) NOT NULL DEFAULT 0,
		selling_price NUMERIC(18,4) NOT NULL CHECK (selling_price > 0),
		stock NUMERIC(18,6) NOT NULL DEFAULT 0 CHECK (stock >= 0),
		min_threshold NUMERIC(18,6) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_variants_product_id ON product_variants(product_id)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		order_number VARCHAR(64) NOT NULL UNIQUE,
		customer_name VARCHAR(255) NOT NULL DEFAULT '',
		customer_phone VARCHAR(64) NOT NULL DEFAULT '',
		customer_email VARCHAR(255),
		total_amount NUMERIC(18,4) NOT NULL,
		discount NUMERIC(18,4) NOT NULL DEFAULT 0,
		final_amount NUMERIC(18,4) NOT NULL,
		payment_method VARCHAR(16) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		order_status VARCHAR(16) NOT NULL,
		stock_restored BOOLEAN NOT NULL DEFAULT false,
		stock_restored_at TIMESTAMP WITH TIME ZONE,
		receipt_printed BOOLEAN NOT NULL DEFAULT false,
		handled_by VARCHAR(255),
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status, payment_status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id UUID NOT NULL,
		variant_id UUID NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		sku VARCHAR(64) NOT NULL,
		requested_quantity NUMERIC(18,6) NOT NULL,
		requested_unit VARCHAR(8) NOT NULL,
		sell_mode VARCHAR(16) NOT NULL,
		base_quantity NUMERIC(18,6) NOT NULL CHECK (base_quantity > 0),
		base_unit VARCHAR(8) NOT NULL,
		unit_price NUMERIC(18,4) NOT NULL,
		subtotal NUMERIC(18,6) NOT NULL,
		UNIQUE (order_id, line_no)
	)`,

	`CREATE TABLE IF NOT EXISTS stock_movements (
		id UUID PRIMARY KEY,
		product_id UUID NOT NULL,
		variant_id UUID NOT NULL,
		movement_type VARCHAR(16) NOT NULL,
		quantity_change NUMERIC(18,6) NOT NULL,
		quantity_before NUMERIC(18,6) NOT NULL,
		quantity_after NUMERIC(18,6) NOT NULL,
		reference_type VARCHAR(32),
		reference_id VARCHAR(64),
		notes TEXT NOT NULL DEFAULT '',
		created_by VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_variant ON stock_movements(variant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id)`,
}

// Migrate applies the DDL in order. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
