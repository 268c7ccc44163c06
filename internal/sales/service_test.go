package sales

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type recordingDeps struct {
	mu        sync.Mutex
	audits    []shared.AuditLog
	bumps     int
	alerts    []int64
	completed int
	failed    []string
	keys      map[string]bool
	bumpErr   error
}

func newRecordingDeps() *recordingDeps {
	return &recordingDeps{keys: make(map[string]bool)}
}

func (d *recordingDeps) Record(ctx context.Context, log shared.AuditLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audits = append(d.audits, log)
	return nil
}

func (d *recordingDeps) Bump(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bumps++
	return d.bumpErr
}

func (d *recordingDeps) EnqueueLowStockAlert(ctx context.Context, product inventory.Product) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, product.ID)
	return nil
}

func (d *recordingDeps) SaleCompleted(total decimal.Decimal, items int, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed++
}

func (d *recordingDeps) SaleFailed(kind string, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, kind)
}

func (d *recordingDeps) CheckAndInsert(ctx context.Context, key, module string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	d.keys[key] = true
	return nil
}

func (d *recordingDeps) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

func (d *recordingDeps) dependencies() Dependencies {
	return Dependencies{Idempotency: d, Audit: d, Stats: d, Alerts: d, Metrics: d}
}

func newTestService(store *memoryStore, opts Options) (*Service, *recordingDeps) {
	deps := newRecordingDeps()
	return NewService(store, store, opts, deps.dependencies(), nil), deps
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func cart(lines ...LineRequest) CompleteSaleInput {
	return CompleteSaleInput{CashierID: 7, Lines: lines, PaymentMethod: PaymentCash}
}

func line(productID int64, qty int, price string) LineRequest {
	return LineRequest{ProductID: productID, Quantity: qty, UnitPrice: dec(price)}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, kind, se.Kind, se.Error())
	return se
}

func TestCompleteSaleSingleLineWithTaxRate(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 1)
	svc, deps := newTestService(store, Options{})

	input := cart(line(p.ID, 2, "10.00"))
	input.TaxRate = decPtr("0.08")
	sale, err := svc.CompleteSale(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 3, store.quantity(p.ID))
	assert.True(t, sale.Subtotal.Equal(dec("20")))
	assert.True(t, sale.Tax.Equal(dec("1.6")))
	assert.True(t, sale.Total.Equal(dec("21.6")), sale.Total.String())
	assert.Equal(t, StatusCompleted, sale.Status)
	assert.Equal(t, int64(7), sale.UserID)
	require.Len(t, sale.Items, 1)
	item := sale.Items[0]
	assert.Equal(t, "SKU1", item.ProductSKU)
	assert.Equal(t, "Product SKU1", item.ProductName)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.Total.Equal(dec("20")))

	assert.Equal(t, 1, deps.completed)
	assert.Equal(t, 1, deps.bumps)
	require.Len(t, deps.audits, 1)
	assert.Equal(t, "sales:complete", deps.audits[0].Action)
	assert.Empty(t, deps.alerts)
}

func TestCompleteSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 0)
	svc, deps := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 10, "10.00")))
	se := requireKind(t, err, KindInsufficientStock)
	assert.Equal(t, p.ID, se.ProductID)
	assert.False(t, se.Retryable())
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	assert.Equal(t, 5, store.quantity(p.ID))
	assert.Zero(t, store.saleCount())
	assert.Zero(t, store.itemCount())
	assert.Equal(t, []string{string(KindInsufficientStock)}, deps.failed)
	assert.Zero(t, deps.bumps)
}

func TestCompleteSaleConcurrentCartsOnSameProduct(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "4.00", 5, 0)
	svc, _ := newTestService(store, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CompleteSale(context.Background(), cart(line(p.ID, 3, "4.00")))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		se := requireKind(t, err, KindInsufficientStock)
		assert.Equal(t, p.ID, se.ProductID)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, store.quantity(p.ID))
	assert.Equal(t, 1, store.saleCount())
}

func TestCompleteSaleDiscountAboveSubtotalRejectedBeforeLocking(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 0)
	svc, _ := newTestService(store, Options{})

	input := cart(line(p.ID, 2, "10.00"))
	input.Discount = dec("25")
	_, err := svc.CompleteSale(context.Background(), input)
	requireKind(t, err, KindValidation)
	assert.ErrorIs(t, err, ErrDiscountExceedsSubtotal)

	assert.Empty(t, store.lockedOrder())
	assert.Equal(t, 5, store.quantity(p.ID))
	assert.Zero(t, store.saleCount())
}

func TestCompleteSaleNoOversellUnderConcurrency(t *testing.T) {
	const (
		attempts = 24
		stock    = 7
	)
	store := newMemoryStore()
	p := store.addProduct("HOT", "1.00", stock, 0)
	svc, _ := newTestService(store, Options{})

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "1.00")))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			if KindOf(err) == KindInsufficientStock {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, attempts-stock, rejected)
	assert.Equal(t, 0, store.quantity(p.ID))
	assert.Equal(t, stock, store.saleCount())
}

func TestCompleteSaleAtomicAcrossLines(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "2.00", 10, 0)
	b := store.addProduct("B", "3.00", 1, 0)
	svc, _ := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(a.ID, 4, "2.00"), line(b.ID, 2, "3.00")))
	se := requireKind(t, err, KindInsufficientStock)
	assert.Equal(t, b.ID, se.ProductID)

	assert.Equal(t, 10, store.quantity(a.ID))
	assert.Equal(t, 1, store.quantity(b.ID))
	assert.Zero(t, store.saleCount())
	assert.Zero(t, store.itemCount())
}

func TestCompleteSaleRollsBackOnStoreFailure(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "2.00", 10, 0)
	b := store.addProduct("B", "3.00", 10, 0)
	store.insertItemErr = errors.New("connection reset by peer")
	store.insertItemProduct = b.ID
	svc, _ := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(a.ID, 1, "2.00"), line(b.ID, 1, "3.00")))
	se := requireKind(t, err, KindStore)
	assert.False(t, se.Retryable())

	assert.Equal(t, 10, store.quantity(a.ID))
	assert.Equal(t, 10, store.quantity(b.ID))
	assert.Zero(t, store.saleCount())
}

func TestCompleteSaleConservation(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "2.00", 10, 0)
	b := store.addProduct("B", "3.00", 8, 0)
	c := store.addProduct("C", "4.00", 6, 0)
	svc, _ := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(a.ID, 3, "2.00"), line(b.ID, 8, "3.00")))
	require.NoError(t, err)

	assert.Equal(t, 7, store.quantity(a.ID))
	assert.Equal(t, 0, store.quantity(b.ID))
	assert.Equal(t, 6, store.quantity(c.ID))
}

func TestCompleteSaleLocksInProductOrder(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "1.00", 10, 0)
	b := store.addProduct("B", "1.00", 10, 0)
	c := store.addProduct("C", "1.00", 10, 0)
	svc, _ := newTestService(store, Options{})

	sale, err := svc.CompleteSale(context.Background(), cart(line(c.ID, 1, "1.00"), line(a.ID, 1, "1.00"), line(b.ID, 1, "1.00")))
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, store.lockedOrder())
	require.Len(t, sale.Items, 3)
	assert.Equal(t, a.ID, *sale.Items[0].ProductID)
}

func TestCompleteSaleOverlappingCartsDoNotDeadlock(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "1.00", 100, 0)
	b := store.addProduct("B", "1.00", 100, 0)
	svc, _ := newTestService(store, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []LineRequest{line(a.ID, 1, "1.00"), line(b.ID, 1, "1.00")}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			_, err := svc.CompleteSale(context.Background(), cart(lines...))
			assert.NoError(t, err)
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent sales did not finish")
	}
	assert.Equal(t, 80, store.quantity(a.ID))
	assert.Equal(t, 80, store.quantity(b.ID))
}

func TestCompleteSaleTotalsHoldForRandomCarts(t *testing.T) {
	store := newMemoryStore()
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, store.addProduct(fmt.Sprintf("R%d", i), "1.00", 1_000_000, 0).ID)
	}
	svc, _ := newTestService(store, Options{})
	rng := rand.New(rand.NewSource(42))

	for n := 0; n < 50; n++ {
		var lines []LineRequest
		for _, id := range ids[:1+rng.Intn(len(ids))] {
			price := decimal.New(int64(rng.Intn(100000)), -2)
			lines = append(lines, LineRequest{ProductID: id, Quantity: 1 + rng.Intn(9), UnitPrice: price})
		}
		input := cart(lines...)
		input.TaxRate = decPtr("0.0725")
		sale, err := svc.CompleteSale(context.Background(), input)
		require.NoError(t, err)

		assert.True(t, Within(sale.Total, sale.Subtotal.Sub(sale.Discount).Add(sale.Tax)))
		sum := decimal.Zero
		for _, item := range sale.Items {
			assert.True(t, item.Total.Equal(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))))
			sum = sum.Add(item.Total)
		}
		assert.True(t, sum.Equal(sale.Subtotal))
	}
}

func TestCompleteSaleValidation(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	cases := map[string]CompleteSaleInput{
		"empty cart":       cart(),
		"zero quantity":    cart(line(p.ID, 0, "1")),
		"negative price":   cart(line(p.ID, 1, "-1")),
		"missing product":  cart(line(0, 1, "1")),
		"unknown payment":  {CashierID: 7, Lines: []LineRequest{line(p.ID, 1, "1")}, PaymentMethod: "Barter"},
		"missing cashier":  {Lines: []LineRequest{line(p.ID, 1, "1")}, PaymentMethod: PaymentCash},
		"negative tax":     {CashierID: 7, Lines: []LineRequest{line(p.ID, 1, "1")}, PaymentMethod: PaymentCash, Tax: decPtr("-1")},
		"price mismatched": cart(line(p.ID, 1, "1"), line(p.ID, 1, "2")),
		"sub-cent price":   cart(line(p.ID, 1000, "0.005")),
		"price too large":  cart(line(p.ID, 1, "100000000000")),
		"total too large":  cart(line(p.ID, 5, "2500000000.00")),
		"sub-cent tax":     {CashierID: 7, Lines: []LineRequest{line(p.ID, 1, "1")}, PaymentMethod: PaymentCash, Tax: decPtr("0.125")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CompleteSale(ctx, input)
			requireKind(t, err, KindValidation)
		})
	}
	assert.Empty(t, store.lockedOrder())
	assert.Equal(t, 5, store.quantity(p.ID))
}

func TestCompleteSaleRejectsSubCentPrice(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "0.01", 5000, 0)
	svc, _ := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1000, "0.005")))
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, p.ID, se.ProductID)
	assert.Equal(t, 5000, store.quantity(p.ID))
	assert.Zero(t, store.saleCount())
}

func TestCompleteSaleLogsRejectionAtWarn(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "1.00", 1, 0)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc := NewService(store, store, Options{}, newRecordingDeps().dependencies(), logger)

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 2, "1.00")))
	requireKind(t, err, KindInsufficientStock)

	var entry map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var e map[string]any
		require.NoError(t, json.Unmarshal(raw, &e))
		if e["msg"] == "sale rejected" {
			entry = e
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "sale rejected", entry["msg"])
	assert.Equal(t, string(KindInsufficientStock), entry["kind"])
	assert.EqualValues(t, p.ID, entry["product_id"])
	assert.EqualValues(t, 7, entry["cashier_id"])
}

func TestCompleteSaleMergesRepeatedProduct(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "2.50", 5, 0)
	svc, _ := newTestService(store, Options{})

	sale, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "2.50"), line(p.ID, 2, "2.50")))
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 3, sale.Items[0].Quantity)
	assert.Equal(t, 2, store.quantity(p.ID))
}

func TestCompleteSaleUnknownProduct(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "1.00", 5, 0)
	svc, _ := newTestService(store, Options{})

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "1.00"), line(404, 1, "1.00")))
	se := requireKind(t, err, KindProductNotFound)
	assert.Equal(t, int64(404), se.ProductID)
	assert.Empty(t, store.lockedOrder())
	assert.Equal(t, 5, store.quantity(p.ID))
}

func TestCompleteSaleDeclaredTotals(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	input := cart(line(p.ID, 2, "10.00"))
	input.Discount = dec("5")
	input.Tax = decPtr("1.20")
	input.Declared = Declared{Subtotal: decPtr("20.00"), Total: decPtr("16.209")}
	sale, err := svc.CompleteSale(ctx, input)
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(dec("16.2")))

	input.Declared.Total = decPtr("20.00")
	_, err = svc.CompleteSale(ctx, input)
	requireKind(t, err, KindInvalidTotals)
	assert.ErrorIs(t, err, ErrTotalsMismatch)
	assert.Equal(t, 3, store.quantity(p.ID))
}

func TestCompleteSaleEnforcesCatalogPrice(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "10.00", 5, 0)
	svc, _ := newTestService(store, Options{EnforceCatalogPrice: true})

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "1.00")))
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, p.ID, se.ProductID)
	assert.Equal(t, 5, store.quantity(p.ID))

	_, err = svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "10")))
	require.NoError(t, err)
}

func TestCompleteSaleIdempotencyKey(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "1.00", 1, 0)
	svc, deps := newTestService(store, Options{})
	ctx := context.Background()

	input := cart(line(p.ID, 2, "1.00"))
	input.IdempotencyKey = "till-3-0001"
	_, err := svc.CompleteSale(ctx, input)
	requireKind(t, err, KindInsufficientStock)
	assert.Empty(t, deps.keys, "failed sale must release its key")

	input.Lines = []LineRequest{line(p.ID, 1, "1.00")}
	_, err = svc.CompleteSale(ctx, input)
	require.NoError(t, err)

	_, err = svc.CompleteSale(ctx, input)
	requireKind(t, err, KindDuplicate)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Equal(t, 1, store.saleCount())
}

func TestCompleteSaleClassifiesStoreErrors(t *testing.T) {
	cases := []struct {
		err       error
		kind      Kind
		retryable bool
	}{
		{fmt.Errorf("%w: deadlock detected", db.ErrConflict), KindConflict, true},
		{fmt.Errorf("%w: lock timeout", db.ErrTimeout), KindTimeout, true},
		{context.DeadlineExceeded, KindTimeout, true},
		{fmt.Errorf("%w: numeric field overflow", db.ErrOutOfRange), KindValidation, false},
		{errors.New("connection refused"), KindStore, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			store := newMemoryStore()
			p := store.addProduct("SKU1", "1.00", 5, 0)
			store.beginErr = tc.err
			svc, _ := newTestService(store, Options{})

			_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 1, "1.00")))
			se := requireKind(t, err, tc.kind)
			assert.Equal(t, tc.retryable, se.Retryable())
			assert.Equal(t, 5, store.quantity(p.ID))
		})
	}
}

func TestCompleteSaleSideEffectsAfterCommit(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "1.00", 5, 3)
	q := store.addProduct("SKU2", "1.00", 50, 3)
	svc, deps := newTestService(store, Options{})
	deps.bumpErr = errors.New("redis down")

	_, err := svc.CompleteSale(context.Background(), cart(line(p.ID, 2, "1.00"), line(q.ID, 1, "1.00")))
	require.NoError(t, err, "side effect failures are not surfaced")
	assert.Equal(t, []int64{p.ID}, deps.alerts)
	assert.Equal(t, 1, deps.bumps)
}

func TestGetSaleIsStable(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "3.00", 5, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	created, err := svc.CompleteSale(ctx, cart(line(p.ID, 2, "3.00")))
	require.NoError(t, err)

	first, err := svc.GetSale(ctx, created.ID)
	require.NoError(t, err)
	second, err := svc.GetSale(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, created, first)

	_, err = svc.GetSale(ctx, 999)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestSaleSurvivesProductDeletion(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("GONE", "3.00", 5, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	created, err := svc.CompleteSale(ctx, cart(line(p.ID, 1, "3.00")))
	require.NoError(t, err)
	store.deleteProduct(p.ID)

	sale, err := svc.GetSale(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.Nil(t, sale.Items[0].ProductID)
	assert.Equal(t, "GONE", sale.Items[0].ProductSKU)
	assert.True(t, sale.Items[0].Price.Equal(dec("3")))
}

func TestListSales(t *testing.T) {
	store := newMemoryStore()
	p := store.addProduct("SKU1", "1.00", 100, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		input := cart(line(p.ID, 1, "1.00"))
		input.CashierID = int64(1 + i%2)
		_, err := svc.CompleteSale(ctx, input)
		require.NoError(t, err)
	}

	sales, total, err := svc.ListSales(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sales, 3)
	assert.Greater(t, sales[0].ID, sales[1].ID)

	sales, total, err = svc.ListSales(ctx, ListFilter{UserID: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(2), sales[0].UserID)

	from := baseTime.Add(90 * time.Second)
	sales, _, err = svc.ListSales(ctx, ListFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	to := from.Add(-time.Hour)
	_, _, err = svc.ListSales(ctx, ListFilter{From: &from, To: &to})
	requireKind(t, err, KindValidation)

	_, _, err = svc.ListSales(ctx, ListFilter{Status: "Pending"})
	requireKind(t, err, KindValidation)
}

func TestRefundSale(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "1.00", 10, 0)
	b := store.addProduct("B", "2.00", 10, 0)
	svc, deps := newTestService(store, Options{})
	ctx := context.Background()

	sale, err := svc.CompleteSale(ctx, cart(line(b.ID, 2, "2.00"), line(a.ID, 3, "1.00")))
	require.NoError(t, err)
	store.mu.Lock()
	store.lockOrder = nil
	store.mu.Unlock()

	refunded, err := svc.RefundSale(ctx, sale.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, 10, store.quantity(a.ID))
	assert.Equal(t, 10, store.quantity(b.ID))
	assert.Equal(t, []int64{a.ID, b.ID}, store.lockedOrder())
	assert.Equal(t, 2, deps.bumps)

	_, err = svc.RefundSale(ctx, sale.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 10, store.quantity(a.ID))

	_, err = svc.RefundSale(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestRefundSkipsDeletedProducts(t *testing.T) {
	store := newMemoryStore()
	a := store.addProduct("A", "1.00", 10, 0)
	b := store.addProduct("B", "1.00", 10, 0)
	svc, _ := newTestService(store, Options{})
	ctx := context.Background()

	sale, err := svc.CompleteSale(ctx, cart(line(a.ID, 1, "1.00"), line(b.ID, 1, "1.00")))
	require.NoError(t, err)
	store.deleteProduct(a.ID)

	_, err = svc.RefundSale(ctx, sale.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, store.quantity(b.ID))
}
