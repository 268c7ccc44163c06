package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the locking operations of the inventory store. It must
// only be used inside an active transaction.
type TxRepository interface {
	// GetForUpdate reads the product row and holds an exclusive row lock
	// until the transaction ends.
	GetForUpdate(ctx context.Context, productID int64) (Product, error)
	// DecrementQuantity subtracts qty, failing with ErrInsufficientStock
	// instead of going below zero.
	DecrementQuantity(ctx context.Context, productID int64, qty int) (Product, error)
	// IncrementQuantity adds qty.
	IncrementQuantity(ctx context.Context, productID int64, qty int) (Product, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	q querier
}

// NewTxRepository binds the locking operations to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{q: tx}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const productColumns = `p.id, p.name, p.sku, p.price, p.cost_price, p.quantity, p.min_stock_level, p.category_id, COALESCE(c.name, ''), p.created_at, p.updated_at`

const productFrom = ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.CostPrice, &p.Quantity, &p.MinStockLevel, &p.CategoryID, &p.CategoryName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetByID reads a product without locking.
func (r *Repository) GetByID(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = $1`, id))
}

// List returns a page of products and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if filter.LowStockOnly {
		where = append(where, "p.quantity <= p.min_stock_level")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products p WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+productFrom+` WHERE `+cond+
		fmt.Sprintf(` ORDER BY p.name ASC, p.id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Create inserts a product.
func (r *Repository) Create(ctx context.Context, input ProductInput) (Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, sku, price, cost_price, quantity, min_stock_level, category_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		input.Name, input.SKU, num(input.Price), num(input.CostPrice), input.Quantity, input.MinStockLevel, input.CategoryID).Scan(&id)
	if err != nil {
		return Product{}, mapWriteError(err)
	}
	return r.GetByID(ctx, id)
}

// Update changes descriptive fields and prices. Quantity is left untouched.
func (r *Repository) Update(ctx context.Context, id int64, input ProductInput) (Product, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name=$2, sku=$3, price=$4, cost_price=$5, min_stock_level=$6, category_id=$7, updated_at=NOW() WHERE id=$1`,
		id, input.Name, input.SKU, num(input.Price), num(input.CostPrice), input.MinStockLevel, input.CategoryID)
	if err != nil {
		return Product{}, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrProductNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a product. Historical sale lines keep their denormalized
// name, SKU and price.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListLowStock returns products at or below their minimum stock level.
func (r *Repository) ListLowStock(ctx context.Context, limit int) ([]Product, error) {
	products, _, err := r.List(ctx, ListFilter{LowStockOnly: true, Limit: limit})
	return products, err
}

// ListCategories returns all categories by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description, ''), created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, name, description string) (Category, error) {
	c := Category{Name: name, Description: description}
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description, created_at) VALUES ($1, NULLIF($2, ''), NOW()) RETURNING id, created_at`, name, description).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(db.Classify(err), db.ErrUniqueViolation) {
			return Category{}, ErrDuplicateCategory
		}
		return Category{}, err
	}
	return c, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, productID int64) (Product, error) {
	// FOR UPDATE OF p locks only the product row, not the joined category.
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = $1 FOR UPDATE OF p`, productID))
}

func (r *txRepository) DecrementQuantity(ctx context.Context, productID int64, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}
	var id int64
	err := r.q.QueryRow(ctx, `UPDATE products SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2 RETURNING id`, productID, qty).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := r.GetForUpdate(ctx, productID); lookupErr != nil {
			return Product{}, lookupErr
		}
		return Product{}, ErrInsufficientStock
	}
	if err != nil {
		return Product{}, err
	}
	return r.GetForUpdate(ctx, id)
}

func (r *txRepository) IncrementQuantity(ctx context.Context, productID int64, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}
	tag, err := r.q.Exec(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`, productID, qty)
	if err != nil {
		return Product{}, err
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrProductNotFound
	}
	return r.GetForUpdate(ctx, productID)
}

func mapWriteError(err error) error {
	classified := db.Classify(err)
	switch {
	case errors.Is(classified, db.ErrUniqueViolation):
		return ErrDuplicateSKU
	case errors.Is(classified, db.ErrForeignKeyViolation):
		return ErrCategoryNotFound
	case errors.Is(classified, db.ErrCheckViolation):
		return fmt.Errorf("%w: %s", ErrInvalidProduct, db.ConstraintName(classified))
	case errors.Is(classified, db.ErrOutOfRange):
		return fmt.Errorf("%w: amount out of range", ErrInvalidProduct)
	}
	return err
}

// num renders a decimal for NUMERIC parameters.
func num(d decimal.Decimal) string {
	return d.String()
}
