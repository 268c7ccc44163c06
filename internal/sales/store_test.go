package sales

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// memoryStore is an in-memory ledger and inventory with per-product row
// locks held until the transaction ends.
type memoryStore struct {
	mu        sync.Mutex
	products  map[int64]inventory.Product
	rowLocks  map[int64]*sync.Mutex
	sales     map[int64]Sale
	items     []LineItem
	nextSale  int64
	nextItem  int64
	nextProd  int64
	lockOrder []int64

	// beginErr is returned by WithTx before fn runs.
	beginErr error
	// insertItemErr fails InsertLineItem for the given product.
	insertItemErr     error
	insertItemProduct int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products: make(map[int64]inventory.Product),
		rowLocks: make(map[int64]*sync.Mutex),
		sales:    make(map[int64]Sale),
	}
}

func (m *memoryStore) addProduct(sku string, price string, qty, minStock int) inventory.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProd++
	p := inventory.Product{
		ID:            m.nextProd,
		Name:          "Product " + sku,
		SKU:           sku,
		Price:         decimal.RequireFromString(price),
		Quantity:      qty,
		MinStockLevel: minStock,
	}
	m.products[p.ID] = p
	m.rowLocks[p.ID] = &sync.Mutex{}
	return p
}

func (m *memoryStore) quantity(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Quantity
}

func (m *memoryStore) deleteProduct(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	for i := range m.items {
		if m.items[i].ProductID != nil && *m.items[i].ProductID == id {
			m.items[i].ProductID = nil
		}
	}
}

func (m *memoryStore) saleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func (m *memoryStore) itemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memoryStore) lockedOrder() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.lockOrder...)
}

func (m *memoryStore) GetByID(ctx context.Context, id int64) (inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (m *memoryStore) FindByID(ctx context.Context, id int64) (Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(id)
}

func (m *memoryStore) findLocked(id int64) (Sale, error) {
	sale, ok := m.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	sale.Items = []LineItem{}
	for _, item := range m.items {
		if item.SaleID == id {
			sale.Items = append(sale.Items, item)
		}
	}
	sort.Slice(sale.Items, func(i, j int) bool { return sale.Items[i].ID < sale.Items[j].ID })
	sale.ItemCount = len(sale.Items)
	return sale, nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Sale{}
	for _, sale := range m.sales {
		switch {
		case filter.From != nil && sale.CreatedAt.Before(*filter.From):
			continue
		case filter.To != nil && !sale.CreatedAt.Before(*filter.To):
			continue
		case filter.UserID > 0 && sale.UserID != filter.UserID:
			continue
		case filter.Status != "" && sale.Status != filter.Status:
			continue
		case filter.PaymentMethod != "" && sale.PaymentMethod != filter.PaymentMethod:
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	if filter.Offset >= len(out) {
		return []Sale{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	tx := &memoryTx{store: m, held: make(map[int64]bool), undo: make(map[int64]int)}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store    *memoryStore
	held     map[int64]bool
	undo     map[int64]int
	sales    []Sale
	items    []LineItem
	statuses map[int64]Status
}

func (tx *memoryTx) lock(id int64) error {
	if tx.held[id] {
		return nil
	}
	tx.store.mu.Lock()
	l, ok := tx.store.rowLocks[id]
	tx.store.mu.Unlock()
	if !ok {
		return inventory.ErrProductNotFound
	}
	l.Lock()
	tx.held[id] = true
	tx.store.mu.Lock()
	tx.store.lockOrder = append(tx.store.lockOrder, id)
	tx.store.mu.Unlock()
	return nil
}

func (tx *memoryTx) release() {
	tx.store.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(tx.held))
	for id := range tx.held {
		locks = append(locks, tx.store.rowLocks[id])
	}
	tx.store.mu.Unlock()
	for _, l := range locks {
		l.Unlock()
	}
	tx.held = nil
}

func (tx *memoryTx) rollback() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for id, qty := range tx.undo {
		if p, ok := tx.store.products[id]; ok {
			p.Quantity = qty
			tx.store.products[id] = p
		}
	}
}

func (tx *memoryTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, sale := range tx.sales {
		tx.store.sales[sale.ID] = sale
	}
	tx.store.items = append(tx.store.items, tx.items...)
	for id, status := range tx.statuses {
		sale := tx.store.sales[id]
		sale.Status = status
		tx.store.sales[id] = sale
	}
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	if err := tx.lock(productID); err != nil {
		return inventory.Product{}, err
	}
	return tx.store.GetByID(ctx, productID)
}

func (tx *memoryTx) adjust(productID int64, delta int) (inventory.Product, error) {
	if err := tx.lock(productID); err != nil {
		return inventory.Product{}, err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	p, ok := tx.store.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	if p.Quantity+delta < 0 {
		return inventory.Product{}, inventory.ErrInsufficientStock
	}
	if _, seen := tx.undo[productID]; !seen {
		tx.undo[productID] = p.Quantity
	}
	p.Quantity += delta
	tx.store.products[productID] = p
	return p, nil
}

func (tx *memoryTx) DecrementQuantity(ctx context.Context, productID int64, qty int) (inventory.Product, error) {
	if qty <= 0 {
		return inventory.Product{}, inventory.ErrInvalidQuantity
	}
	return tx.adjust(productID, -qty)
}

func (tx *memoryTx) IncrementQuantity(ctx context.Context, productID int64, qty int) (inventory.Product, error) {
	if qty <= 0 {
		return inventory.Product{}, inventory.ErrInvalidQuantity
	}
	return tx.adjust(productID, qty)
}

func (tx *memoryTx) InsertSaleHeader(ctx context.Context, header Sale) (Sale, error) {
	tx.store.mu.Lock()
	tx.store.nextSale++
	header.ID = tx.store.nextSale
	tx.store.mu.Unlock()
	header.CreatedAt = baseTime.Add(time.Duration(header.ID) * time.Minute)
	tx.sales = append(tx.sales, header)
	return header, nil
}

func (tx *memoryTx) InsertLineItem(ctx context.Context, saleID int64, item LineItem) (LineItem, error) {
	if tx.store.insertItemErr != nil && item.ProductID != nil && *item.ProductID == tx.store.insertItemProduct {
		return LineItem{}, tx.store.insertItemErr
	}
	tx.store.mu.Lock()
	tx.store.nextItem++
	item.ID = tx.store.nextItem
	tx.store.mu.Unlock()
	item.SaleID = saleID
	item.CreatedAt = baseTime
	tx.items = append(tx.items, item)
	return item, nil
}

func (tx *memoryTx) FindForUpdate(ctx context.Context, id int64) (Sale, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return tx.store.findLocked(id)
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if tx.statuses == nil {
		tx.statuses = make(map[int64]Status)
	}
	tx.statuses[id] = status
	return nil
}
