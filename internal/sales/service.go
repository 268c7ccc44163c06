package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const idempotencyModule = "sales"

// RepositoryPort abstracts the sale ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByID(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// CatalogPort performs unlocked product lookups.
type CatalogPort interface {
	GetByID(ctx context.Context, id int64) (inventory.Product, error)
}

// IdempotencyPort registers request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StatsInvalidator drops cached aggregates after ledger changes.
type StatsInvalidator interface {
	Bump(ctx context.Context) error
}

// LowStockNotifier is told about products left at or below their threshold.
type LowStockNotifier interface {
	EnqueueLowStockAlert(ctx context.Context, product inventory.Product) error
}

// MetricsRecorder observes checkout outcomes.
type MetricsRecorder interface {
	SaleCompleted(total decimal.Decimal, items int, elapsed time.Duration)
	SaleFailed(kind string, elapsed time.Duration)
}

// Options tunes checkout behaviour.
type Options struct {
	// EnforceCatalogPrice rejects lines whose unit price differs from the
	// locked product price.
	EnforceCatalogPrice bool
}

// Dependencies are optional collaborators invoked after commit.
type Dependencies struct {
	Idempotency IdempotencyPort
	Audit       AuditPort
	Stats       StatsInvalidator
	Alerts      LowStockNotifier
	Metrics     MetricsRecorder
}

// Service coordinates sale completion and the sale read side.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	opts    Options
	deps    Dependencies
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, opts Options, deps Dependencies, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, opts: opts, deps: deps, logger: logger, now: time.Now}
}

// CompleteSale records a cart as one atomic sale: product rows are locked in
// ascending id order, stock is checked under the lock, the header and line
// items are written and stock is decremented. Any failure rolls back every
// write. Failures are returned as *Error.
func (s *Service) CompleteSale(ctx context.Context, input CompleteSaleInput) (Sale, error) {
	start := s.now()
	sale, touched, err := s.completeSale(ctx, input)
	elapsed := s.now().Sub(start)
	if err != nil {
		kind := KindOf(err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SaleFailed(string(kind), elapsed)
		}
		level := slog.LevelWarn
		if kind == KindStore {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.Int64("cashier_id", input.CashierID),
			slog.String("kind", string(kind)),
		}
		var se *Error
		if errors.As(err, &se) && se.ProductID != 0 {
			attrs = append(attrs, slog.Int64("product_id", se.ProductID))
		}
		attrs = append(attrs, slog.Any("error", err))
		s.logger.LogAttrs(ctx, level, "sale rejected", attrs...)
		return Sale{}, err
	}

	s.afterCommit(ctx, sale, touched, elapsed)
	return s.rehydrate(ctx, sale), nil
}

func (s *Service) completeSale(ctx context.Context, input CompleteSaleInput) (Sale, []inventory.Product, error) {
	lines, err := mergeLines(input.Lines)
	if err != nil {
		return Sale{}, nil, err
	}
	if input.CashierID <= 0 {
		return Sale{}, nil, invalid("cashier required")
	}
	if !input.PaymentMethod.Valid() {
		return Sale{}, nil, invalid("unknown payment method %q", input.PaymentMethod)
	}
	totals, err := ComputeTotals(lines, input.Discount, input.Tax, input.TaxRate)
	if err != nil {
		return Sale{}, nil, err
	}
	if err := totals.Check(input.Declared); err != nil {
		return Sale{}, nil, err
	}
	for _, line := range lines {
		if _, err := s.catalog.GetByID(ctx, line.ProductID); err != nil {
			return Sale{}, nil, classify(lineError(line.ProductID, err))
		}
	}

	if input.IdempotencyKey != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, nil, &Error{Kind: KindDuplicate, Err: err}
			}
			return Sale{}, nil, storeError(err)
		}
	}

	var (
		sale    Sale
		touched []inventory.Product
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.InsertSaleHeader(ctx, Sale{
			UserID:        input.CashierID,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Tax:           totals.Tax,
			Total:         totals.Total,
			PaymentMethod: input.PaymentMethod,
			Status:        StatusCompleted,
		})
		if err != nil {
			return err
		}
		sale = header
		sale.Items = make([]LineItem, 0, len(lines))
		touched = touched[:0]

		for _, line := range lines {
			product, err := tx.GetForUpdate(ctx, line.ProductID)
			if err != nil {
				return lineError(line.ProductID, err)
			}
			if product.Quantity < line.Quantity {
				return &Error{Kind: KindInsufficientStock, ProductID: line.ProductID, Err: fmt.Errorf("%w: requested %d, available %d", inventory.ErrInsufficientStock, line.Quantity, product.Quantity)}
			}
			if s.opts.EnforceCatalogPrice && !product.Price.Equal(line.UnitPrice) {
				return &Error{Kind: KindValidation, ProductID: line.ProductID, Err: fmt.Errorf("unit price %s differs from catalog price %s", line.UnitPrice.StringFixed(2), product.Price.StringFixed(2))}
			}
			productID := product.ID
			item, err := tx.InsertLineItem(ctx, sale.ID, LineItem{
				ProductID:   &productID,
				ProductName: product.Name,
				ProductSKU:  product.SKU,
				Quantity:    line.Quantity,
				Price:       line.UnitPrice,
				Total:       LineTotal(line.Quantity, line.UnitPrice),
			})
			if err != nil {
				return err
			}
			updated, err := tx.DecrementQuantity(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return lineError(line.ProductID, err)
			}
			sale.Items = append(sale.Items, item)
			touched = append(touched, updated)
		}
		sale.ItemCount = len(sale.Items)
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.deps.Idempotency != nil {
			if delErr := s.deps.Idempotency.Delete(context.WithoutCancel(ctx), input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return Sale{}, nil, classify(err)
	}
	return sale, touched, nil
}

func (s *Service) afterCommit(ctx context.Context, sale Sale, touched []inventory.Product, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	items := 0
	for _, item := range sale.Items {
		items += item.Quantity
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SaleCompleted(sale.Total, items, elapsed)
	}
	s.record(ctx, sale.UserID, "sales:complete", sale.ID, map[string]any{
		"total":          sale.Total.StringFixed(2),
		"items":          items,
		"payment_method": string(sale.PaymentMethod),
	})
	s.bumpStats(ctx)
	if s.deps.Alerts != nil {
		for _, product := range touched {
			if !product.LowStock() {
				continue
			}
			if err := s.deps.Alerts.EnqueueLowStockAlert(ctx, product); err != nil {
				s.logger.Warn("enqueue low stock alert", slog.Int64("product_id", product.ID), slog.Any("error", err))
			}
		}
	}
	s.logger.Info("sale completed",
		slog.Int64("sale_id", sale.ID),
		slog.Int64("cashier_id", sale.UserID),
		slog.String("total", sale.Total.StringFixed(2)),
		slog.Int("lines", len(sale.Items)),
		slog.Duration("elapsed", elapsed))
}

// rehydrate re-reads a committed sale, falling back to the written copy.
func (s *Service) rehydrate(ctx context.Context, sale Sale) Sale {
	stored, err := s.repo.FindByID(ctx, sale.ID)
	if err != nil {
		s.logger.Warn("reload committed sale", slog.Int64("sale_id", sale.ID), slog.Any("error", err))
		return sale
	}
	return stored
}

// GetSale returns a sale with its line items.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, ErrSaleNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// ListSales returns sale headers, newest first, and the total match count.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, invalid("from must be before to")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, invalid("unknown status %q", filter.Status)
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, 0, invalid("unknown payment method %q", filter.PaymentMethod)
	}
	filter.Limit, filter.Offset = shared.ClampPage(filter.Limit, filter.Offset)
	return s.repo.List(ctx, filter)
}

// RefundSale marks a completed sale refunded and returns its quantities to
// stock, locking products in ascending id order.
func (s *Service) RefundSale(ctx context.Context, id, actorID int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, ErrSaleNotFound
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != StatusCompleted {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, sale.Status, StatusRefunded)
		}
		restock := make(map[int64]int)
		for _, item := range sale.Items {
			if item.ProductID != nil {
				restock[*item.ProductID] += item.Quantity
			}
		}
		ids := make([]int64, 0, len(restock))
		for productID := range restock {
			ids = append(ids, productID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, productID := range ids {
			if _, err := tx.GetForUpdate(ctx, productID); err != nil {
				if errors.Is(err, inventory.ErrProductNotFound) {
					continue
				}
				return err
			}
			if _, err := tx.IncrementQuantity(ctx, productID, restock[productID]); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusRefunded)
	})
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) || errors.Is(err, ErrInvalidStatus) {
			return Sale{}, err
		}
		return Sale{}, classify(err)
	}
	ctx = context.WithoutCancel(ctx)
	s.record(ctx, actorID, "sales:refund", id, nil)
	s.bumpStats(ctx)
	s.logger.Info("sale refunded", slog.Int64("sale_id", id), slog.Int64("actor_id", actorID))
	return s.GetSale(ctx, id)
}

func (s *Service) bumpStats(ctx context.Context) {
	if s.deps.Stats == nil {
		return
	}
	if err := s.deps.Stats.Bump(ctx); err != nil {
		s.logger.Warn("bump stats cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// mergeLines validates cart lines, folds repeated products into one line and
// sorts the result by product id.
func mergeLines(lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		return nil, invalidErr(ErrEmptyCart)
	}
	index := make(map[int64]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for i, line := range lines {
		switch {
		case line.ProductID <= 0:
			return nil, invalid("line %d: product id required", i)
		case line.Quantity < 1:
			return nil, &Error{Kind: KindValidation, ProductID: line.ProductID, Err: fmt.Errorf("line %d: quantity must be at least 1", i)}
		}
		if err := checkAmount("unit price", line.UnitPrice); err != nil {
			return nil, &Error{Kind: KindValidation, ProductID: line.ProductID, Err: fmt.Errorf("line %d: %w", i, err)}
		}
		if at, ok := index[line.ProductID]; ok {
			if !merged[at].UnitPrice.Equal(line.UnitPrice) {
				return nil, &Error{Kind: KindValidation, ProductID: line.ProductID, Err: errors.New("product listed twice with different prices")}
			}
			merged[at].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func lineError(productID int64, err error) error {
	var se *Error
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, inventory.ErrProductNotFound):
		return &Error{Kind: KindProductNotFound, ProductID: productID, Err: err}
	case errors.Is(err, inventory.ErrInsufficientStock):
		return &Error{Kind: KindInsufficientStock, ProductID: productID, Err: err}
	}
	return err
}

// classify maps transaction failures onto sale error kinds.
func classify(err error) error {
	var se *Error
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, db.ErrConflict):
		return &Error{Kind: KindConflict, Err: err}
	case errors.Is(err, db.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, db.ErrOutOfRange):
		return invalidErr(err)
	}
	return storeError(err)
}

func storeError(err error) *Error {
	return &Error{Kind: KindStore, Err: err}
}
