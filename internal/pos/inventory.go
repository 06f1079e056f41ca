package pos

import (
	"context"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/chunk"
	"github.com/maruel/tallerdb/internal/docstore"
)

func stockPath(loc string) string {
	return docstore.JoinPath("stock", loc)
}

func (s *Service) validateProduct(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("product name is required")
	}
	if strings.Contains(p.ID, ".") {
		return invalid("product id %q must not contain a dot", p.ID)
	}
	if p.Price < 0 || p.Cost < 0 {
		return invalid("%s: amounts must not be negative", p.Name)
	}
	if p.MinStock < 0 {
		return invalid("%s: minimum stock must not be negative", p.Name)
	}
	for loc, n := range p.Stock {
		if _, err := s.location(loc); err != nil {
			return err
		}
		if n < 0 {
			return invalid("%s: stock at %s must not be negative", p.Name, loc)
		}
	}
	return nil
}

// productRecord encodes p for writing. Unset timestamps and the chunk are left
// out so merges keep the stored values.
func productRecord(p *Product) (chunk.Record, error) {
	rec, err := encode(p)
	if err != nil {
		return nil, err
	}
	delete(rec, chunk.FieldChunkDoc)
	if p.Created.IsZero() {
		delete(rec, chunk.FieldCreatedAt)
	}
	if p.Stock == nil {
		delete(rec, "stock")
	}
	return rec, nil
}

// CreateProduct adds a product. Writes are not capacity guarded.
func (s *Service) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if err := s.validateProduct(&p); err != nil {
		return nil, err
	}
	p.ChunkDoc = ""
	p.Created = s.stamp()
	p.Updated = p.Created
	if p.Stock == nil {
		p.Stock = map[string]int64{}
	}
	rec, err := productRecord(&p)
	if err != nil {
		return nil, err
	}
	if rec, err = s.Products.Append(ctx, rec); err != nil {
		return nil, err
	}
	return decode[Product](rec)
}

// ImportProducts upserts products by id. Existing products are updated in
// place; new ones fill chunks in order.
func (s *Service) ImportProducts(ctx context.Context, products []Product) (chunk.ImportResult, error) {
	recs := make([]chunk.Record, 0, len(products))
	for i := range products {
		p := products[i]
		if err := s.validateProduct(&p); err != nil {
			return chunk.ImportResult{}, err
		}
		p.ChunkDoc = ""
		p.Created = time.Time{}
		rec, err := productRecord(&p)
		if err != nil {
			return chunk.ImportResult{}, err
		}
		recs = append(recs, rec)
	}
	return s.Products.Import(ctx, recs)
}

// GetProduct returns the product at ref.
func (s *Service) GetProduct(ctx context.Context, ref chunk.Ref) (*Product, error) {
	rec, err := s.Products.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decode[Product](rec)
}

// ListProducts returns every product sorted by name.
func (s *Service) ListProducts(ctx context.Context) ([]*Product, error) {
	recs, err := s.Products.List(ctx, chunk.ByName)
	if err != nil {
		return nil, err
	}
	return decodeAll[Product](recs)
}

// LowStock returns products with a minimum stock whose total stock is at or
// below it.
func (s *Service) LowStock(ctx context.Context) ([]*Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Product
	for _, p := range all {
		if p.MinStock > 0 && p.TotalStock() <= p.MinStock {
			out = append(out, p)
		}
	}
	return out, nil
}

// ProductUpdate lists the product fields to change; nil fields are kept.
type ProductUpdate struct {
	Name     *string `json:"name,omitempty"`
	Code     *string `json:"code,omitempty"`
	Category *string `json:"category,omitempty"`
	Brand    *string `json:"brand,omitempty"`
	Cost     *Money  `json:"cost,omitempty"`
	Price    *Money  `json:"price,omitempty"`
	MinStock *int64  `json:"minStock,omitempty"`
}

// UpdateProduct changes descriptive fields. Stock is changed with AdjustStock.
func (s *Service) UpdateProduct(ctx context.Context, ref chunk.Ref, u ProductUpdate) (*Product, error) {
	fields := map[string]any{}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalid("product name is required")
		}
		fields["name"] = name
	}
	set := func(key string, v *string) {
		if v != nil {
			fields[key] = strings.TrimSpace(*v)
		}
	}
	set("code", u.Code)
	set("category", u.Category)
	set("brand", u.Brand)
	for key, v := range map[string]*Money{"cost": u.Cost, "price": u.Price} {
		if v != nil {
			if *v < 0 {
				return nil, invalid("%s must not be negative", key)
			}
			fields[key] = int64(*v)
		}
	}
	if u.MinStock != nil {
		if *u.MinStock < 0 {
			return nil, invalid("minimum stock must not be negative")
		}
		fields["minStock"] = *u.MinStock
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}
	fields[chunk.FieldUpdatedAt] = chunk.Timestamp(s.stamp())
	if err := s.Products.Mutate(ctx, ref, func(chunk.Record) (map[string]any, error) { return fields, nil }); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, ref)
}

// AdjustStock adds delta to the stock of one location inside a transaction
// and returns the new quantity. Stock never goes below zero.
func (s *Service) AdjustStock(ctx context.Context, ref chunk.Ref, location string, delta int64) (int64, error) {
	loc, err := s.location(location)
	if err != nil {
		return 0, err
	}
	var next int64
	err = s.Products.Mutate(ctx, ref, func(rec chunk.Record) (map[string]any, error) {
		v, _ := rec.Lookup(stockPath(loc))
		cur, _ := docstore.Int(v)
		next = cur + delta
		if next < 0 {
			return nil, &InsufficientStockError{ProductID: ref.ID, Name: rec.String("name"), Location: loc, Available: cur, Requested: -delta}
		}
		return map[string]any{stockPath(loc): next, chunk.FieldUpdatedAt: chunk.Timestamp(s.stamp())}, nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// DeleteProduct removes the product.
func (s *Service) DeleteProduct(ctx context.Context, ref chunk.Ref) error {
	return s.Products.HardDelete(ctx, ref)
}
