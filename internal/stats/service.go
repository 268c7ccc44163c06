package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTopProducts = 10
	maxTopProducts     = 100
)

// RepositoryPort abstracts aggregate queries.
type RepositoryPort interface {
	Summary(ctx context.Context, w Window) (Summary, error)
	ByCategory(ctx context.Context, w Window) ([]CategoryTotal, error)
	TopProducts(ctx context.Context, w Window, limit int) ([]ProductTotal, error)
	Daily(ctx context.Context, w Window) ([]DailyTotal, error)
}

// Service coordinates aggregate queries with the cache layer.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a repository with a cache. A nil cache queries directly.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// DefaultWindow returns the trailing DefaultDays window.
func (s *Service) DefaultWindow() Window {
	return TrailingDays(s.now(), DefaultDays)
}

// Summary returns revenue, tax, discount and volume totals.
func (s *Service) Summary(ctx context.Context, w Window) (Summary, error) {
	if err := w.Validate(); err != nil {
		return Summary{}, err
	}
	var out Summary
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		summary, err := s.repo.Summary(ctx, w)
		if err != nil {
			return nil, err
		}
		if summary.Transactions > 0 {
			summary.AverageTicket = summary.Revenue.Div(decimal.NewFromInt(int64(summary.Transactions))).Round(2)
		}
		return summary, nil
	}, "summary", w.token())
	return out, err
}

// ByCategory returns revenue per category.
func (s *Service) ByCategory(ctx context.Context, w Window) ([]CategoryTotal, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := []CategoryTotal{}
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.ByCategory(ctx, w)
	}, "categories", w.token())
	return out, err
}

// TopProducts returns the best sellers by quantity.
func (s *Service) TopProducts(ctx context.Context, w Window, limit int) ([]ProductTotal, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopProducts
	}
	if limit > maxTopProducts {
		limit = maxTopProducts
	}
	out := []ProductTotal{}
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.TopProducts(ctx, w, limit)
	}, "top_products", w.token(), strconv.Itoa(limit))
	return out, err
}

// Daily returns per-day totals.
func (s *Service) Daily(ctx context.Context, w Window) ([]DailyTotal, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := []DailyTotal{}
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.Daily(ctx, w)
	}, "daily", w.token())
	return out, err
}

// Dashboard loads every rollup concurrently.
func (s *Service) Dashboard(ctx context.Context, w Window) (Dashboard, error) {
	if err := w.Validate(); err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Window: w}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Summary, err = s.Summary(gctx, w)
		return err
	})
	g.Go(func() (err error) {
		d.Categories, err = s.ByCategory(gctx, w)
		return err
	})
	g.Go(func() (err error) {
		d.TopProducts, err = s.TopProducts(gctx, w, defaultTopProducts)
		return err
	})
	g.Go(func() (err error) {
		d.Daily, err = s.Daily(gctx, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("stats: dashboard: %w", err)
	}
	return d, nil
}

// Bump invalidates cached aggregates.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) fetch(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, append([]string{"stats"}, parts...)...)
	if err != nil {
		s.logger.Warn("stats cache unavailable", slog.Any("error", err))
		return load(ctx, dest, loader)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}
