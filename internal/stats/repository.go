package stats

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs aggregate queries over committed, completed sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const completedIn = `s.status = 'Completed' AND s.created_at >= $1 AND s.created_at < $2`

// Summary totals the window.
func (r *Repository) Summary(ctx context.Context, w Window) (Summary, error) {
	var out Summary
	err := r.pool.QueryRow(ctx, `SELECT
	COALESCE(SUM(s.total), 0),
	COALESCE(SUM(s.discount), 0),
	COALESCE(SUM(s.tax), 0),
	COUNT(*),
	COALESCE((SELECT SUM(si.quantity) FROM sale_items si JOIN sales s ON s.id = si.sale_id WHERE `+completedIn+`), 0)
FROM sales s WHERE `+completedIn, w.From, w.To).Scan(&out.Revenue, &out.Discount, &out.Tax, &out.Transactions, &out.ItemsSold)
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

// ByCategory groups line revenue by the product's current category.
func (r *Repository) ByCategory(ctx context.Context, w Window) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, COALESCE(c.name, 'Uncategorized'), SUM(si.quantity), SUM(si.total)
FROM sale_items si
JOIN sales s ON s.id = si.sale_id
LEFT JOIN products p ON p.id = si.product_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE `+completedIn+`
GROUP BY c.id, c.name
ORDER BY SUM(si.total) DESC, c.id NULLS LAST`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategoryTotal, error) {
		var ct CategoryTotal
		err := row.Scan(&ct.CategoryID, &ct.Name, &ct.Quantity, &ct.Revenue)
		return ct, err
	})
}

// TopProducts ranks products by units sold.
func (r *Repository) TopProducts(ctx context.Context, w Window, limit int) ([]ProductTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT si.product_id, MAX(si.product_name), si.product_sku, SUM(si.quantity), SUM(si.total)
FROM sale_items si
JOIN sales s ON s.id = si.sale_id
WHERE `+completedIn+`
GROUP BY si.product_id, si.product_sku
ORDER BY SUM(si.quantity) DESC, SUM(si.total) DESC, si.product_sku
LIMIT $3`, w.From, w.To, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProductTotal, error) {
		var pt ProductTotal
		err := row.Scan(&pt.ProductID, &pt.Name, &pt.SKU, &pt.Quantity, &pt.Revenue)
		return pt, err
	})
}

// Daily buckets the window by UTC day.
func (r *Repository) Daily(ctx context.Context, w Window) ([]DailyTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT date_trunc('day', s.created_at AT TIME ZONE 'UTC') AS day, COUNT(*), SUM(s.total)
FROM sales s
WHERE `+completedIn+`
GROUP BY day
ORDER BY day`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyTotal, error) {
		var dt DailyTotal
		err := row.Scan(&dt.Day, &dt.Transactions, &dt.Revenue)
		dt.Day = dt.Day.UTC()
		return dt, err
	})
}
