package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
)

// LineInput is a requested sale or budget line.
type LineInput struct {
	ProductID string `json:"productId,omitempty"`
	ChunkDoc  string `json:"productChunk,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	// UnitPrice overrides the product price. Required for service lines.
	UnitPrice *Money `json:"unitPrice,omitempty"`
}

// CheckoutInput is a sale to register.
type CheckoutInput struct {
	Lines         []LineInput `json:"lines"`
	Location      string      `json:"location,omitempty"`
	PaymentMethod string      `json:"paymentMethod,omitempty"`
	ClientID      string      `json:"clientId,omitempty"`
	Discount      Money       `json:"discount,omitempty"`

	budgetID string
}

// stockDemand maps product chunk to product id to quantity.
type stockDemand map[string]map[string]int64

func (d stockDemand) add(chunkDoc, id string, qty int64) {
	if d[chunkDoc] == nil {
		d[chunkDoc] = map[string]int64{}
	}
	d[chunkDoc][id] += qty
}

// priceLines resolves inputs against a product snapshot. When loc is not
// empty, the aggregated quantity of each product is checked against its stock
// at loc.
func (s *Service) priceLines(ctx context.Context, in []LineInput, loc string) ([]Line, stockDemand, Money, error) {
	if len(in) == 0 {
		return nil, nil, 0, invalid("at least one line is required")
	}
	snap, err := s.Products.List(ctx, chunk.Stored)
	if err != nil {
		return nil, nil, 0, err
	}
	byID := make(map[string]chunk.Record, len(snap))
	for _, r := range snap {
		byID[r.ID()] = r
	}
	lines := make([]Line, 0, len(in))
	demand := stockDemand{}
	var total Money
	for i, li := range in {
		if li.Quantity <= 0 {
			return nil, nil, 0, invalid("line %d: quantity must be positive", i+1)
		}
		l := Line{Quantity: li.Quantity, Name: strings.TrimSpace(li.Name)}
		if li.ProductID == "" {
			if l.Name == "" || li.UnitPrice == nil {
				return nil, nil, 0, invalid("line %d: a line without product needs a name and a unit price", i+1)
			}
		} else {
			rec, ok := byID[li.ProductID]
			if !ok || (li.ChunkDoc != "" && li.ChunkDoc != rec.ChunkDoc()) {
				return nil, nil, 0, fmt.Errorf("line %d: %w: product %s", i+1, chunk.ErrNotFound, li.ProductID)
			}
			l.ProductID = rec.ID()
			l.ChunkDoc = rec.ChunkDoc()
			l.Name = rec.String("name")
			l.UnitPrice = Money(rec.Int("price"))
			demand.add(l.ChunkDoc, l.ProductID, l.Quantity)
		}
		if li.UnitPrice != nil {
			if *li.UnitPrice < 0 {
				return nil, nil, 0, invalid("line %d: unit price must not be negative", i+1)
			}
			l.UnitPrice = *li.UnitPrice
		}
		l.Subtotal = l.UnitPrice * Money(l.Quantity)
		total += l.Subtotal
		lines = append(lines, l)
	}
	if loc != "" {
		for _, chunkDoc := range slices.Sorted(maps.Keys(demand)) {
			for _, id := range slices.Sorted(maps.Keys(demand[chunkDoc])) {
				rec := byID[id]
				v, _ := rec.Lookup(stockPath(loc))
				avail, _ := docstore.Int(v)
				if want := demand[chunkDoc][id]; want > avail {
					return nil, nil, 0, &InsufficientStockError{ProductID: id, Name: rec.String("name"), Location: loc, Available: avail, Requested: want}
				}
			}
		}
	}
	return lines, demand, total, nil
}

// takeStock decrements stock for every chunk in demand, one transaction per
// chunk. Chunks already decremented are restocked when a later one fails.
func (s *Service) takeStock(ctx context.Context, demand stockDemand, loc string) error {
	done := stockDemand{}
	for _, chunkDoc := range slices.Sorted(maps.Keys(demand)) {
		want := demand[chunkDoc]
		now := chunk.Timestamp(s.stamp())
		err := s.Products.Batch(ctx, chunkDoc, func(recs map[string]chunk.Record) (chunk.Changes, error) {
			changes := chunk.Changes{}
			for _, id := range slices.Sorted(maps.Keys(want)) {
				rec, ok := recs[id]
				if !ok {
					return nil, fmt.Errorf("%w: product %s/%s", chunk.ErrNotFound, chunkDoc, id)
				}
				v, _ := rec.Lookup(stockPath(loc))
				avail, _ := docstore.Int(v)
				if want[id] > avail {
					return nil, &InsufficientStockError{ProductID: id, Name: rec.String("name"), Location: loc, Available: avail, Requested: want[id]}
				}
				changes[id] = map[string]any{stockPath(loc): avail - want[id], chunk.FieldUpdatedAt: now}
			}
			return changes, nil
		})
		if err != nil {
			if len(done) > 0 {
				s.compensate(ctx, done, loc, "stock decrement failed")
			}
			return err
		}
		done[chunkDoc] = want
	}
	return nil
}

// restock adds the quantities back, one transaction per chunk. Products that
// no longer exist are skipped.
func (s *Service) restock(ctx context.Context, demand stockDemand, loc string) error {
	var errs []error
	for _, chunkDoc := range slices.Sorted(maps.Keys(demand)) {
		qty := demand[chunkDoc]
		now := chunk.Timestamp(s.stamp())
		err := s.Products.Batch(ctx, chunkDoc, func(recs map[string]chunk.Record) (chunk.Changes, error) {
			changes := chunk.Changes{}
			for id, n := range qty {
				rec, ok := recs[id]
				if !ok {
					continue
				}
				v, _ := rec.Lookup(stockPath(loc))
				cur, _ := docstore.Int(v)
				changes[id] = map[string]any{stockPath(loc): cur + n, chunk.FieldUpdatedAt: now}
			}
			return changes, nil
		})
		if err != nil && !errors.Is(err, chunk.ErrNotFound) {
			errs = append(errs, fmt.Errorf("restock chunk %s: %w", chunkDoc, err))
		}
	}
	return errors.Join(errs...)
}

// compensate restocks after a partial checkout. It runs even if ctx was
// cancelled; failures are only logged.
func (s *Service) compensate(ctx context.Context, demand stockDemand, loc, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.restock(ctx, demand, loc); err != nil {
		slog.ErrorContext(ctx, "Failed to restock after partial checkout", "reason", reason, "location", loc, "err", err)
		return
	}
	slog.WarnContext(ctx, "Restocked after partial checkout", "reason", reason, "location", loc, "chunks", len(demand))
}

func validPayment(m string) (string, error) {
	if m == "" {
		return PayCash, nil
	}
	if !slices.Contains(paymentMethods, m) {
		return "", invalid("unknown payment method %q", m)
	}
	return m, nil
}

// Checkout registers a sale. Every line is validated against a snapshot,
// then stock is decremented with one transaction per product chunk and the
// sale is appended. The two steps are not atomic together; a failure after
// stock was taken restocks on a best effort basis.
func (s *Service) Checkout(ctx context.Context, v Viewer, in CheckoutInput) (*Sale, error) {
	loc, err := s.location(in.Location)
	if err != nil {
		return nil, err
	}
	pay, err := validPayment(in.PaymentMethod)
	if err != nil {
		return nil, err
	}
	lines, demand, total, err := s.priceLines(ctx, in.Lines, loc)
	if err != nil {
		return nil, err
	}
	if in.Discount < 0 || in.Discount > total {
		return nil, invalid("discount must be between 0 and %s", total)
	}
	sale := Sale{
		Lines:         lines,
		Location:      loc,
		PaymentMethod: pay,
		SellerID:      v.ID,
		SellerName:    v.Name,
		BudgetID:      in.budgetID,
		Discount:      in.Discount,
		Total:         total - in.Discount,
		Status:        SaleCompleted,
	}
	if in.ClientID != "" {
		c, err := s.Clients.Find(ctx, in.ClientID)
		if err != nil {
			return nil, err
		}
		sale.ClientID = c.ID()
		sale.ClientName = c.String("name")
	}

	if err := s.takeStock(ctx, demand, loc); err != nil {
		return nil, err
	}
	sale.Created = s.stamp()
	rec, err := encode(&sale)
	if err == nil {
		delete(rec, chunk.FieldChunkDoc)
		delete(rec, chunk.FieldID)
		rec, err = s.Sales.AppendTx(ctx, rec)
	}
	if err != nil {
		s.compensate(ctx, demand, loc, "sale append failed")
		return nil, err
	}
	slog.InfoContext(ctx, "Sale registered", "id", rec.ID(), "chunk", rec.ChunkDoc(), "total", sale.Total.String(), "seller", v.ID)
	return decode[Sale](rec)
}

func canSeeSale(v Viewer, sale *Sale) bool {
	return v.SeesAllSales() || sale.SellerID == v.ID
}

// GetSale returns a sale visible to v.
func (s *Service) GetSale(ctx context.Context, v Viewer, ref chunk.Ref) (*Sale, error) {
	rec, err := s.Sales.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	sale, err := decode[Sale](rec)
	if err != nil {
		return nil, err
	}
	if !canSeeSale(v, sale) {
		return nil, fmt.Errorf("%w: sale %s", ErrForbidden, ref)
	}
	return sale, nil
}

// SaleFilter narrows ListSales. Zero fields do not filter.
type SaleFilter struct {
	From          time.Time `query:"from"`
	To            time.Time `query:"to"`
	IncludeVoided bool      `query:"voided"`
}

// ListSales returns the sales visible to v, most recent first. Users without
// the sales_all permission only see their own sales.
func (s *Service) ListSales(ctx context.Context, v Viewer, f SaleFilter) ([]*Sale, error) {
	recs, err := s.Sales.List(ctx, chunk.NewestFirst)
	if err != nil {
		return nil, err
	}
	all, err := decodeAll[Sale](recs)
	if err != nil {
		return nil, err
	}
	out := make([]*Sale, 0, len(all))
	for _, sale := range all {
		if !canSeeSale(v, sale) {
			continue
		}
		if !f.IncludeVoided && sale.Status == SaleVoided {
			continue
		}
		if !f.From.IsZero() && sale.Created.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !sale.Created.Before(f.To) {
			continue
		}
		out = append(out, sale)
	}
	return out, nil
}

// VoidSale soft deletes a sale and puts its products back in stock. The sale
// record is kept with status anulada.
func (s *Service) VoidSale(ctx context.Context, v Viewer, ref chunk.Ref) (*Sale, error) {
	var sale *Sale
	now := chunk.Timestamp(s.stamp())
	err := s.Sales.Mutate(ctx, ref, func(rec chunk.Record) (map[string]any, error) {
		var err error
		if sale, err = decode[Sale](rec); err != nil {
			return nil, err
		}
		if !canSeeSale(v, sale) {
			return nil, fmt.Errorf("%w: sale %s", ErrForbidden, ref)
		}
		if sale.Status == SaleVoided {
			return nil, fmt.Errorf("%w: sale %s is already voided", ErrTransition, ref)
		}
		return map[string]any{chunk.FieldStatus: SaleVoided, chunk.FieldDeletedAt: now, chunk.FieldUpdatedAt: now}, nil
	})
	if err != nil {
		return nil, err
	}
	demand := stockDemand{}
	for _, l := range sale.Lines {
		if l.ProductID != "" {
			demand.add(l.ChunkDoc, l.ProductID, l.Quantity)
		}
	}
	if err := s.restock(ctx, demand, sale.Location); err != nil {
		return nil, fmt.Errorf("sale %s voided but restock failed: %w", ref, err)
	}
	slog.InfoContext(ctx, "Sale voided", "id", ref.ID, "chunk", ref.ChunkDoc, "by", v.ID)
	return s.GetSale(ctx, v, ref)
}

// DeleteSale removes a sale record. Stock is not touched.
func (s *Service) DeleteSale(ctx context.Context, v Viewer, ref chunk.Ref) error {
	if _, err := s.GetSale(ctx, v, ref); err != nil {
		return err
	}
	return s.Sales.HardDelete(ctx, ref)
}
