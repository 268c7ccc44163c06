package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Create(ctx context.Context, input ProductInput) (Product, error)
	Update(ctx context.Context, id int64, input ProductInput) (Product, error)
	Delete(ctx context.Context, id int64) error
	ListLowStock(ctx context.Context, limit int) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, description string) (Category, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// ListProducts returns a filtered page of products and the total count.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	filter.Limit, filter.Offset = shared.ClampPage(filter.Limit, filter.Offset)
	return s.repo.List(ctx, filter)
}

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput, actorID int64) (Product, error) {
	input = normalise(input)
	if err := validateProduct(input); err != nil {
		return Product{}, err
	}
	if input.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidProduct)
	}
	product, err := s.repo.Create(ctx, input)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "inventory:product_create", product.ID, map[string]any{"sku": product.SKU, "quantity": product.Quantity})
	return product, nil
}

// UpdateProduct replaces descriptive fields and prices.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput, actorID int64) (Product, error) {
	input = normalise(input)
	if err := validateProduct(input); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "inventory:product_update", product.ID, map[string]any{"sku": product.SKU, "price": product.Price.String()})
	return product, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:product_delete", id, nil)
	return nil
}

// AdjustStock applies a signed correction under a row lock. The resulting
// quantity never goes below zero.
func (s *Service) AdjustStock(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if input.ProductID <= 0 {
		return Adjustment{}, ErrProductNotFound
	}
	if input.Delta == 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	var result Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.Quantity+input.Delta < 0 {
			return ErrNegativeStock
		}
		var updated Product
		if input.Delta > 0 {
			updated, err = tx.IncrementQuantity(ctx, input.ProductID, input.Delta)
		} else {
			updated, err = tx.DecrementQuantity(ctx, input.ProductID, -input.Delta)
			if errors.Is(err, ErrInsufficientStock) {
				err = ErrNegativeStock
			}
		}
		if err != nil {
			return err
		}
		result = Adjustment{
			ProductID: input.ProductID,
			Before:    product.Quantity,
			After:     updated.Quantity,
			Delta:     input.Delta,
			Reason:    input.Reason,
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.record(ctx, input.ActorID, "inventory:adjust", input.ProductID, map[string]any{
		"before": result.Before,
		"after":  result.After,
		"delta":  result.Delta,
		"reason": result.Reason,
	})
	return result, nil
}

// LowStock lists products at or below their minimum stock level.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	limit, _ = shared.ClampPage(limit, 0)
	return s.repo.ListLowStock(ctx, limit)
}

// Categories lists product categories.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory stores a new category.
func (s *Service) CreateCategory(ctx context.Context, name, description string, actorID int64) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name required", ErrInvalidProduct)
	}
	category, err := s.repo.CreateCategory(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, actorID, "inventory:category_create", category.ID, map[string]any{"name": category.Name})
	return category, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func normalise(input ProductInput) ProductInput {
	input.Name = strings.TrimSpace(input.Name)
	input.SKU = strings.TrimSpace(input.SKU)
	if input.CategoryID != nil && *input.CategoryID <= 0 {
		input.CategoryID = nil
	}
	return input
}

func validateProduct(input ProductInput) error {
	switch {
	case input.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidProduct)
	case input.SKU == "":
		return fmt.Errorf("%w: sku required", ErrInvalidProduct)
	case input.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case input.CostPrice.IsNegative():
		return fmt.Errorf("%w: cost price must not be negative", ErrInvalidProduct)
	case input.MinStockLevel < 0:
		return fmt.Errorf("%w: minimum stock level must not be negative", ErrInvalidProduct)
	}
	return nil
}
