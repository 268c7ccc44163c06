package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the admin user or reset its password",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("SEED_ADMIN_PASSWORD")
		}
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
			svc := auth.NewService(auth.NewRepository(pool), nil)
			id, err := svc.EnsureUser(ctx, auth.EnsureUserInput{
				Email:    adminEmail,
				Name:     adminName,
				Password: password,
				Role:     auth.RoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready (id=%d)\n", adminEmail, id)
			return nil
		})
	},
}

type demoProduct struct {
	category string
	name     string
	sku      string
	price    string
	cost     string
	quantity int
	minStock int
}

var demoCatalog = []demoProduct{
	{"Beverages", "Espresso beans 250g", "BEV-ESP-250", "12.50", "7.10", 40, 10},
	{"Beverages", "Oat milk 1L", "BEV-OAT-1L", "3.20", "1.85", 60, 12},
	{"Beverages", "Sparkling water 500ml", "BEV-SPK-500", "1.10", "0.40", 120, 24},
	{"Bakery", "Butter croissant", "BAK-CRO-01", "2.40", "0.90", 30, 8},
	{"Bakery", "Sourdough loaf", "BAK-SDL-01", "5.75", "2.10", 15, 5},
	{"Household", "Dish soap 750ml", "HOU-DSH-750", "4.10", "2.30", 25, 6},
}

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Insert a small demo catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
			svc := inventory.NewService(inventory.NewRepository(pool), shared.NewAuditLogger(pool), nil)
			created, err := seedCatalog(ctx, svc, demoCatalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", created)
			return nil
		})
	},
}

// catalogSeeder is the slice of inventory.Service used by seedCatalog.
type catalogSeeder interface {
	Categories(ctx context.Context) ([]inventory.Category, error)
	CreateCategory(ctx context.Context, name, description string, actorID int64) (inventory.Category, error)
	CreateProduct(ctx context.Context, input inventory.ProductInput, actorID int64) (inventory.Product, error)
}

// seedCatalog is idempotent: existing categories are reused and duplicate SKUs skipped.
func seedCatalog(ctx context.Context, svc catalogSeeder, catalog []demoProduct) (int, error) {
	existing, err := svc.Categories(ctx)
	if err != nil {
		return 0, err
	}
	categoryIDs := make(map[string]int64, len(existing))
	for _, c := range existing {
		categoryIDs[c.Name] = c.ID
	}
	created := 0
	for _, p := range catalog {
		id, ok := categoryIDs[p.category]
		if !ok {
			category, err := svc.CreateCategory(ctx, p.category, "", 0)
			if err != nil {
				return created, fmt.Errorf("create category %s: %w", p.category, err)
			}
			id = category.ID
			categoryIDs[p.category] = id
		}
		categoryID := id
		_, err := svc.CreateProduct(ctx, inventory.ProductInput{
			Name:          p.name,
			SKU:           p.sku,
			Price:         decimal.RequireFromString(p.price),
			CostPrice:     decimal.RequireFromString(p.cost),
			Quantity:      p.quantity,
			MinStockLevel: p.minStock,
			CategoryID:    &categoryID,
		}, 0)
		if errors.Is(err, inventory.ErrDuplicateSKU) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create product %s: %w", p.sku, err)
		}
		created++
	}
	return created, nil
}

func init() {
	seedAdminCmd.Flags().StringVar(&adminEmail, "email", "admin@pos.local", "Admin email")
	seedAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "Admin display name")
	seedAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password (defaults to SEED_ADMIN_PASSWORD)")
}
