package pos

import (
	"context"
	"errors"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"golang.org/x/sync/errgroup"
)

// Summary is the dashboard overview.
type Summary struct {
	Products       int          `json:"products"`
	LowStock       int          `json:"lowStock"`
	StockValue     Money        `json:"stockValue"`
	SalesToday     int          `json:"salesToday"`
	RevenueToday   Money        `json:"revenueToday"`
	PendingBudgets int          `json:"pendingBudgets"`
	OpenJobs       int          `json:"openJobs"`
	Clients        int          `json:"clients"`
	Cash           *CashBalance `json:"cash,omitempty"`
}

// Summary loads every collection concurrently and aggregates them for v.
// "Today" starts at local midnight.
func (s *Service) Summary(ctx context.Context, v Viewer) (*Summary, error) {
	var sum Summary
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		products, err := s.ListProducts(ctx)
		if err != nil {
			return err
		}
		sum.Products = len(products)
		for _, p := range products {
			if p.MinStock > 0 && p.TotalStock() <= p.MinStock {
				sum.LowStock++
			}
			sum.StockValue += p.Cost * Money(p.TotalStock())
		}
		return nil
	})
	eg.Go(func() error {
		sales, err := s.ListSales(ctx, v, SaleFilter{From: midnight})
		if err != nil {
			return err
		}
		sum.SalesToday = len(sales)
		for _, sale := range sales {
			sum.RevenueToday += sale.Total
		}
		return nil
	})
	eg.Go(func() error {
		budgets, err := s.ListBudgets(ctx, BudgetPending)
		sum.PendingBudgets = len(budgets)
		return err
	})
	eg.Go(func() error {
		jobs, err := s.ListJobs(ctx, v, "")
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if j.Status != JobDelivered && j.Status != JobCancelled {
				sum.OpenJobs++
			}
		}
		return nil
	})
	eg.Go(func() error {
		recs, err := s.Clients.List(ctx, chunk.Stored)
		sum.Clients = len(recs)
		return err
	})
	eg.Go(func() error {
		b, err := s.CurrentBalance(ctx)
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		sum.Cash = b
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &sum, nil
}
