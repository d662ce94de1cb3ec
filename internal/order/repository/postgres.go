package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	orderColumns = `id, order_number, customer_name, customer_phone, customer_email, total_amount, discount,
		final_amount, payment_method, payment_status, order_status, stock_restored, stock_restored_at,
		receipt_printed, handled_by, notes, created_at, updated_at`
	itemColumns = `id, order_id, line_no, product_id, variant_id, product_name, sku, requested_quantity,
		requested_unit, sell_mode, base_quantity, base_unit, unit_price, subtotal`
)

// orderRow flattens model.Order for the orders table.
type orderRow struct {
	ID              string              `db:"id"`
	OrderNumber     string              `db:"order_number"`
	CustomerName    string              `db:"customer_name"`
	CustomerPhone   string              `db:"customer_phone"`
	CustomerEmail   *string             `db:"customer_email"`
	TotalAmount     decimal.Decimal     `db:"total_amount"`
	Discount        decimal.Decimal     `db:"discount"`
	FinalAmount     decimal.Decimal     `db:"final_amount"`
	PaymentMethod   model.PaymentMethod `db:"payment_method"`
	PaymentStatus   model.PaymentStatus `db:"payment_status"`
	OrderStatus     model.OrderStatus   `db:"order_status"`
	StockRestored   bool                `db:"stock_restored"`
	StockRestoredAt *time.Time          `db:"stock_restored_at"`
	ReceiptPrinted  bool                `db:"receipt_printed"`
	HandledBy       *string             `db:"handled_by"`
	Notes           string              `db:"notes"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

func toRow(o *model.Order) orderRow {
	return orderRow{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.Customer.Name,
		CustomerPhone:   o.Customer.Phone,
		CustomerEmail:   o.Customer.Email,
		TotalAmount:     o.TotalAmount,
		Discount:        o.Discount,
		FinalAmount:     o.FinalAmount,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		OrderStatus:     o.OrderStatus,
		StockRestored:   o.StockRestored,
		StockRestoredAt: o.StockRestoredAt,
		ReceiptPrinted:  o.ReceiptPrinted,
		HandledBy:       o.HandledBy,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (row orderRow) toModel() model.Order {
	return model.Order{
		ID:          row.ID,
		OrderNumber: row.OrderNumber,
		Customer: model.Customer{
			Name:  row.CustomerName,
			Phone: row.CustomerPhone,
			Email: row.CustomerEmail,
		},
		Items:           []model.OrderLineItem{},
		TotalAmount:     row.TotalAmount,
		Discount:        row.Discount,
		FinalAmount:     row.FinalAmount,
		PaymentMethod:   row.PaymentMethod,
		PaymentStatus:   row.PaymentStatus,
		OrderStatus:     row.OrderStatus,
		StockRestored:   row.StockRestored,
		StockRestoredAt: row.StockRestoredAt,
		ReceiptPrinted:  row.ReceiptPrinted,
		HandledBy:       row.HandledBy,
		Notes:           row.Notes,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type PGRepository struct {
	DB *sqlx.DB
	tx *postgres.Transactor
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db, tx: postgres.NewTransactor(db)}
}

func (r *PGRepository) Create(ctx context.Context, o *model.Order) error {
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, r.DB)

		query := `
			INSERT INTO orders (` + orderColumns + `)
			VALUES (:id, :order_number, :customer_name, :customer_phone, :customer_email, :total_amount, :discount,
				:final_amount, :payment_method, :payment_status, :order_status, :stock_restored, :stock_restored_at,
				:receipt_printed, :handled_by, :notes, :created_at, :updated_at)
		`
		if _, err := sqlx.NamedExecContext(ctx, conn, query, toRow(o)); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		itemQuery := `
			INSERT INTO order_items (` + itemColumns + `)
			VALUES (:id, :order_id, :line_no, :product_id, :variant_id, :product_name, :sku, :requested_quantity,
				:requested_unit, :sell_mode, :base_quantity, :base_unit, :unit_price, :subtotal)
		`
		for i := range o.Items {
			if _, err := sqlx.NamedExecContext(ctx, conn, itemQuery, &o.Items[i]); err != nil {
				return fmt.Errorf("insert order item %d: %w", o.Items[i].LineNo, err)
			}
		}
		return nil
	})
	return postgres.MapError(err)
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var row orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 LIMIT 1`
	if err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}

	orders := []model.Order{row.toModel()}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// FindByIDs returns the orders in the order of ids, skipping ids that do not exist.
func (r *PGRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Order, error) {
	if len(ids) == 0 {
		return []model.Order{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+orderColumns+` FROM orders WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, postgres.Conn(ctx, r.DB), &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}

	byID := make(map[string]orderRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	orders := make([]model.Order, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			orders = append(orders, row.toModel())
		}
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.OrderFilters) ([]model.Order, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.OrderStatus != "" {
		conditions = append(conditions, "order_status = :order_status")
		args["order_status"] = f.OrderStatus
	}
	if f.PaymentStatus != "" {
		conditions = append(conditions, "payment_status = :payment_status")
		args["payment_status"] = f.PaymentStatus
	}
	if f.Search != "" {
		conditions = append(conditions,
			"(order_number ILIKE :search OR customer_name ILIKE :search OR customer_phone ILIKE :search)")
		args["search"] = "%" + f.Search + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := postgres.Conn(ctx, r.DB)

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM orders"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, conn, &count, r.DB.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC", orderColumns, whereClause)
	if f.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (f.Page-1)*f.PageSize)
	}
	listQuery, listArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, conn, &rows, r.DB.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, err
	}

	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toModel())
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

func (r *PGRepository) attachItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[string]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		byID[orders[i].ID] = i
	}

	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	var items []model.OrderLineItem
	if err := sqlx.SelectContext(ctx, postgres.Conn(ctx, r.DB), &items, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, it := range items {
		i := byID[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

// UpdateStatus is a conditional UPDATE: it only matches while the row still has
// the statuses and restoration flag the caller read.
func (r *PGRepository) UpdateStatus(ctx context.Context, u *dto.StatusUpdate) error {
	res, err := postgres.Conn(ctx, r.DB).ExecContext(ctx, `
		UPDATE orders
		SET order_status = $1,
			payment_status = $2,
			receipt_printed = $3,
			stock_restored = $4,
			stock_restored_at = $5,
			updated_at = $6
		WHERE id = $7 AND order_status = $8 AND payment_status = $9 AND stock_restored = $10
	`, u.OrderStatus, u.PaymentStatus, u.ReceiptPrinted, u.StockRestored, u.StockRestoredAt, u.UpdatedAt,
		u.ID, u.ExpectOrderStatus, u.ExpectPaymentStatus, u.ExpectStockRestored)
	if err != nil {
		return postgres.MapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &exists,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, u.ID); err != nil {
		return err
	}
	if !exists {
		return order.ErrOrderNotFound
	}
	return fmt.Errorf("%w: order %s changed concurrently", database.ErrConflict, u.ID)
}
