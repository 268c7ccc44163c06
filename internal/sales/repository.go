package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository is the PostgreSQL sale ledger.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs a repository. A positive lockTimeout bounds row
// lock waits inside WithTx.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// TxRepository exposes ledger writes together with the inventory locking
// operations of the same transaction.
type TxRepository interface {
	inventory.TxRepository
	InsertSaleHeader(ctx context.Context, header Sale) (Sale, error)
	InsertLineItem(ctx context.Context, saleID int64, item LineItem) (LineItem, error)
	// FindForUpdate loads a sale and locks its header row.
	FindForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. Under read committed a
// FOR UPDATE that waited on a concurrent sale re-reads the committed row
// instead of failing with a serialization error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: r.lockTimeout}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const saleColumns = `s.id, s.user_id, s.subtotal, s.discount, s.tax, s.total, s.payment_method, s.status, s.created_at,
	(SELECT COUNT(*) FROM sale_items si WHERE si.sale_id = s.id)`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.UserID, &s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.PaymentMethod, &s.Status, &s.CreatedAt, &s.ItemCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return s, err
}

func findSale(ctx context.Context, q querier, id int64, lock bool) (Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales s WHERE s.id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRow(ctx, query, id))
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = listItems(ctx, q, id)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func listItems(ctx context.Context, q querier, saleID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, product_name, product_sku, quantity, price, total, created_at
FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.ProductSKU, &item.Quantity, &item.Price, &item.Total, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindByID returns the sale with its line items ordered by line id.
func (r *Repository) FindByID(ctx context.Context, id int64) (Sale, error) {
	return findSale(ctx, r.pool, id, false)
}

// List returns sale headers matching filter, newest first, and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("s.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("s.created_at < $%d", *filter.To)
	}
	if filter.UserID > 0 {
		add("s.user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("s.status = $%d", string(filter.Status))
	}
	if filter.PaymentMethod != "" {
		add("s.payment_method = $%d", string(filter.PaymentMethod))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales s`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM sales s%s ORDER BY s.created_at DESC, s.id DESC LIMIT $%d OFFSET $%d`, saleColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	return sales, total, rows.Err()
}

func (t *txRepo) InsertSaleHeader(ctx context.Context, header Sale) (Sale, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (user_id, subtotal, discount, tax, total, payment_method, status)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		header.UserID, num(header.Subtotal), num(header.Discount), num(header.Tax), num(header.Total), string(header.PaymentMethod), string(header.Status),
	).Scan(&header.ID, &header.CreatedAt)
	if err != nil {
		return Sale{}, err
	}
	return header, nil
}

func (t *txRepo) InsertLineItem(ctx context.Context, saleID int64, item LineItem) (LineItem, error) {
	item.SaleID = saleID
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, product_name, product_sku, quantity, price, total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		saleID, item.ProductID, item.ProductName, item.ProductSKU, item.Quantity, num(item.Price), num(item.Total),
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return LineItem{}, err
	}
	return item, nil
}

func (t *txRepo) FindForUpdate(ctx context.Context, id int64) (Sale, error) {
	return findSale(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

// num renders a decimal for NUMERIC parameters.
func num(d decimal.Decimal) string {
	return d.String()
}
