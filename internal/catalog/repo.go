package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, sku, category_id, name, description, image_url,
	price::text, status, total_stock, available_stock, reserved_stock,
	sold_count, low_stock_threshold, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price string
	err := row.Scan(&p.ID, &p.SKU, &p.CategoryID, &p.Name, &p.Description, &p.ImageURL,
		&price, &p.Status, &p.TotalStock, &p.AvailableStock, &p.ReservedStock,
		&p.SoldCount, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price for product %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProductActive
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, sku, category_id, name, description, image_url,
			price, status, total_stock, available_stock, reserved_stock,
			sold_count, low_stock_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())`,
		p.ID, p.SKU, p.CategoryID, p.Name, p.Description, p.ImageURL,
		p.Price.String(), p.Status, p.TotalStock, p.AvailableStock, p.ReservedStock,
		p.SoldCount, p.LowStockThreshold)
	return err
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// GetProducts batch-fetches the referenced products for a checkout.
func (r *Repo) GetProducts(ctx context.Context, ids []string) (map[string]*Product, error) {
	if len(ids) == 0 {
		return map[string]*Product{}, nil
	}
	params := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+strings.Join(params, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
}

// ListProductsByCategory returns products in the category and its whole
// subtree, resolved with a recursive CTE over parent_id.
func (r *Repo) ListProductsByCategory(ctx context.Context, categoryID string) ([]Product, error) {
	return r.listProducts(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT id FROM categories WHERE id = $1
			UNION ALL
			SELECT c.id FROM categories c JOIN subtree s ON c.parent_id = s.id
		)
		SELECT `+productColumns+` FROM products
		WHERE category_id IN (SELECT id FROM subtree)
		ORDER BY sku`, categoryID)
}

func (r *Repo) ListLowStock(ctx context.Context) ([]Product, error) {
	return r.listProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE available_stock <= low_stock_threshold AND status <> 'DISCONTINUED'
		ORDER BY available_stock`)
}

func (r *Repo) listProducts(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) ReserveStock(ctx context.Context, productID string, qty int) error {
	return ReserveStock(ctx, r.DB, productID, qty)
}

func (r *Repo) ReleaseStock(ctx context.Context, productID string, qty int) error {
	return ReleaseStock(ctx, r.DB, productID, qty)
}

func (r *Repo) ConfirmStock(ctx context.Context, productID string, qty int) error {
	return ConfirmStock(ctx, r.DB, productID, qty)
}

func (r *Repo) AddStock(ctx context.Context, productID string, qty int) error {
	return AddStock(ctx, r.DB, productID, qty)
}

func (r *Repo) CreateCategory(ctx context.Context, c *Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO categories(id, parent_id, name, slug, sort_order, created_at)
		VALUES ($1,$2,$3,$4,$5,now())`,
		c.ID, c.ParentID, c.Name, c.Slug, c.SortOrder)
	return err
}

func (r *Repo) GetCategory(ctx context.Context, id string) (*Category, error) {
	var c Category
	err := r.DB.QueryRow(ctx, `SELECT id, parent_id, name, slug, sort_order, created_at
	                           FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.ParentID, &c.Name, &c.Slug, &c.SortOrder, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListRootCategories(ctx context.Context) ([]Category, error) {
	return r.listCategories(ctx, `SELECT id, parent_id, name, slug, sort_order, created_at
	                              FROM categories WHERE parent_id IS NULL ORDER BY sort_order, name`)
}

func (r *Repo) ListChildCategories(ctx context.Context, parentID string) ([]Category, error) {
	return r.listCategories(ctx, `SELECT id, parent_id, name, slug, sort_order, created_at
	                              FROM categories WHERE parent_id = $1 ORDER BY sort_order, name`, parentID)
}

func (r *Repo) listCategories(ctx context.Context, q string, args ...any) ([]Category, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name, &c.Slug, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
