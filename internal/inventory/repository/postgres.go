package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const variantStockColumns = `
	v.id AS variant_id, v.product_id, p.name AS product_name, v.sku, v.sell_mode, v.base_unit,
	v.stock, v.min_threshold, v.is_active`

type PGRepository struct {
	DB *sqlx.DB
	tx *postgres.Transactor
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db, tx: postgres.NewTransactor(db)}
}

type stockRow struct {
	ProductID string          `db:"product_id"`
	Stock     decimal.Decimal `db:"stock"`
}

// Debit is a single conditional UPDATE, so the check and the write happen under
// the row lock and concurrent debits on the same variant queue behind it.
func (r *PGRepository) Debit(ctx context.Context, m *model.StockMovement) error {
	amount := m.QuantityChange.Neg()
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, r.DB)

		var row stockRow
		err := sqlx.GetContext(ctx, conn, &row, `
			UPDATE product_variants
			SET stock = stock - $1, updated_at = NOW()
			WHERE id = $2 AND stock >= $1
			RETURNING product_id, stock
		`, amount, m.VariantID)
		if errors.Is(err, sql.ErrNoRows) {
			return r.explainMiss(ctx, m.VariantID, amount)
		}
		if err != nil {
			return err
		}

		m.ProductID = row.ProductID
		m.QuantityAfter = row.Stock
		m.QuantityBefore = row.Stock.Add(amount)
		return r.logMovement(ctx, m)
	})
	return postgres.MapError(err)
}

// explainMiss tells a missing variant apart from a short one after a debit matched no row.
func (r *PGRepository) explainMiss(ctx context.Context, variantID string, amount decimal.Decimal) error {
	var stock decimal.Decimal
	err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &stock,
		`SELECT stock FROM product_variants WHERE id = $1`, variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", product.ErrVariantNotFound, variantID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: requested %s, available %s", inventory.ErrInsufficientStock, amount, stock)
}

func (r *PGRepository) Credit(ctx context.Context, m *model.StockMovement) error {
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var row stockRow
		err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &row, `
			UPDATE product_variants
			SET stock = stock + $1, updated_at = NOW()
			WHERE id = $2
			RETURNING product_id, stock
		`, m.QuantityChange, m.VariantID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", product.ErrVariantNotFound, m.VariantID)
		}
		if err != nil {
			return err
		}

		m.ProductID = row.ProductID
		m.QuantityAfter = row.Stock
		m.QuantityBefore = row.Stock.Sub(m.QuantityChange)
		return r.logMovement(ctx, m)
	})
	return postgres.MapError(err)
}

func (r *PGRepository) logMovement(ctx context.Context, m *model.StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			id, product_id, variant_id, movement_type, quantity_change, quantity_before, quantity_after,
			reference_type, reference_id, notes, created_by, created_at
		)
		VALUES (
			:id, :product_id, :variant_id, :movement_type, :quantity_change, :quantity_before, :quantity_after,
			:reference_type, :reference_id, :notes, :created_by, :created_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, postgres.Conn(ctx, r.DB), query, m); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (r *PGRepository) GetVariantStock(ctx context.Context, variantID string) (*dto.VariantStock, error) {
	var vs dto.VariantStock
	query := `SELECT ` + variantStockColumns + `
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`
	if err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &vs, query, variantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrVariantNotFound
		}
		return nil, err
	}
	vs.LowStock = vs.Stock.LessThanOrEqual(vs.MinThreshold)
	return &vs, nil
}

func (r *PGRepository) ListLowStock(ctx context.Context, page, pageSize int) ([]dto.VariantStock, int, error) {
	conn := postgres.Conn(ctx, r.DB)
	where := ` FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.is_active AND p.is_active AND v.stock <= v.min_threshold`

	var count int
	if err := sqlx.GetContext(ctx, conn, &count, `SELECT count(*)`+where); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + variantStockColumns + where + ` ORDER BY (v.stock - v.min_threshold) ASC, v.sku`
	if pageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}

	items := []dto.VariantStock{}
	if err := sqlx.SelectContext(ctx, conn, &items, query); err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].LowStock = true
	}
	return items, count, nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.VariantID != "" {
		conditions = append(conditions, "variant_id = :variant_id")
		args["variant_id"] = f.VariantID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = :reference_type")
		args["reference_type"] = f.ReferenceType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at < :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := postgres.Conn(ctx, r.DB)

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM stock_movements"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, conn, &count, r.DB.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC, id"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}
	listQuery, listArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}

	items := []model.StockMovement{}
	if err := sqlx.SelectContext(ctx, conn, &items, r.DB.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}
