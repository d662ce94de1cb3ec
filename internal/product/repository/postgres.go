package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

const (
	productColumns = `id, name, description, category_id, product_type, is_active, created_at, updated_at`
	variantColumns = `id, product_id, sku, sell_mode, base_unit, buying_price, selling_price, stock,
		min_threshold, is_active, created_at, updated_at`
)

type PGRepository struct {
	DB *sqlx.DB
	tx *postgres.Transactor
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db, tx: postgres.NewTransactor(db)}
}

func (r *PGRepository) Create(ctx context.Context, p *model.Product) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO products (` + productColumns + `)
			VALUES (:id, :name, :description, :category_id, :product_type, :is_active, :created_at, :updated_at)
		`
		if _, err := sqlx.NamedExecContext(ctx, postgres.Conn(ctx, r.DB), query, p); err != nil {
			return err
		}
		for i := range p.Variants {
			if err := r.CreateVariant(ctx, &p.Variants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 LIMIT 1`
	if err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrProductNotFound
		}
		return nil, err
	}

	products := []model.Product{p}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.ProductFilters) ([]model.Product, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductType != "" {
		conditions = append(conditions, "product_type = :product_type")
		args["product_type"] = f.ProductType
	}
	if f.IsActive != nil {
		conditions = append(conditions, "is_active = :is_active")
		args["is_active"] = *f.IsActive
	}
	if f.SearchQuery != "" {
		conditions = append(conditions,
			"(name ILIKE :search OR EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = products.id AND v.sku ILIKE :search))")
		args["search"] = "%" + f.SearchQuery + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := postgres.Conn(ctx, r.DB)

	// Count
	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM products"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, conn, &count, r.DB.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	// List
	orderBy := "created_at DESC"
	if f.SortBy != "" {
		// whitelisted
		switch f.SortBy {
		case "name":
			orderBy = "name"
		default:
			orderBy = "created_at"
		}
		if strings.ToLower(f.SortOrder) == "asc" {
			orderBy += " ASC"
		} else {
			orderBy += " DESC"
		}
	}

	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s", productColumns, whereClause, orderBy)
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	listQuery, listArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}
	products := []model.Product{}
	if err := sqlx.SelectContext(ctx, conn, &products, r.DB.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, err
	}

	if err := r.attachVariants(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, count, nil
}

func (r *PGRepository) attachVariants(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, 0, len(products))
	byID := make(map[string]int, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
		byID[products[i].ID] = i
		products[i].Variants = []model.Variant{}
	}

	query, args, err := sqlx.In(`SELECT `+variantColumns+` FROM product_variants WHERE product_id IN (?) ORDER BY created_at, sku`, ids)
	if err != nil {
		return err
	}

	var variants []model.Variant
	if err := sqlx.SelectContext(ctx, postgres.Conn(ctx, r.DB), &variants, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, v := range variants {
		i := byID[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	return nil
}

func (r *PGRepository) Update(ctx context.Context, p *model.Product) error {
	query := `
		UPDATE products
		SET name = :name,
			description = :description,
			category_id = :category_id,
			product_type = :product_type,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, postgres.Conn(ctx, r.DB), query, p)
	if err != nil {
		return err
	}
	return expectOne(res, product.ErrProductNotFound)
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	res, err := postgres.Conn(ctx, r.DB).ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOne(res, product.ErrProductNotFound)
}

func (r *PGRepository) CreateVariant(ctx context.Context, v *model.Variant) error {
	query := `
		INSERT INTO product_variants (` + variantColumns + `)
		VALUES (:id, :product_id, :sku, :sell_mode, :base_unit, :buying_price, :selling_price, :stock,
			:min_threshold, :is_active, :created_at, :updated_at)
	`
	_, err := sqlx.NamedExecContext(ctx, postgres.Conn(ctx, r.DB), query, v)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", product.ErrDuplicateSKU, v.SKU)
	}
	return err
}

// UpdateVariant never writes stock, sell_mode or base_unit.
func (r *PGRepository) UpdateVariant(ctx context.Context, v *model.Variant) error {
	query := `
		UPDATE product_variants
		SET buying_price = :buying_price,
			selling_price = :selling_price,
			min_threshold = :min_threshold,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id AND product_id = :product_id
	`
	res, err := sqlx.NamedExecContext(ctx, postgres.Conn(ctx, r.DB), query, v)
	if err != nil {
		return err
	}
	return expectOne(res, product.ErrVariantNotFound)
}

func (r *PGRepository) FindVariant(ctx context.Context, productID, variantID string) (*model.Product, *model.Variant, error) {
	conn := postgres.Conn(ctx, r.DB)

	var p model.Product
	err := sqlx.GetContext(ctx, conn, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var v model.Variant
	err = sqlx.GetContext(ctx, conn, &v,
		`SELECT `+variantColumns+` FROM product_variants WHERE id = $1 AND product_id = $2`, variantID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, product.ErrVariantNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &p, &v, nil
}

func (r *PGRepository) IsSKUUnique(ctx context.Context, sku, excludeVariantID string) (bool, error) {
	var count int
	query := `SELECT count(*) FROM product_variants WHERE sku = $1`
	args := []interface{}{sku}
	if excludeVariantID != "" {
		query += ` AND id != $2`
		args = append(args, excludeVariantID)
	}

	if err := sqlx.GetContext(ctx, postgres.Conn(ctx, r.DB), &count, query, args...); err != nil {
		return false, err
	}
	return count == 0, nil
}

func expectOne(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
