package pos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/maruel/tallerdb/internal/chunk"
	"gopkg.in/yaml.v3"
)

// Catalog is a seed file of products and clients:
//
//	products:
//	  - id: CAB-USB-C
//	    name: Cable USB-C 1m
//	    price: 4500.50
//	    stock: {local: 10, deposito: 40}
//	clients:
//	  - name: Ana Pérez
//	    phone: 11 5555-0101
type Catalog struct {
	Products []CatalogProduct `yaml:"products"`
	Clients  []CatalogClient  `yaml:"clients"`
}

// CatalogProduct is a product row of a Catalog. Amounts are in units with up
// to two decimals.
type CatalogProduct struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Code     string           `yaml:"code"`
	Category string           `yaml:"category"`
	Brand    string           `yaml:"brand"`
	Cost     Money            `yaml:"cost"`
	Price    Money            `yaml:"price"`
	MinStock int64            `yaml:"minStock"`
	Stock    map[string]int64 `yaml:"stock"`
}

// CatalogClient is a client row of a Catalog.
type CatalogClient struct {
	Name    string `yaml:"name"`
	Phone   string `yaml:"phone"`
	Email   string `yaml:"email"`
	TaxID   string `yaml:"taxId"`
	Address string `yaml:"address"`
}

// ParseCatalog decodes a YAML catalog. Unknown fields are rejected.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// CatalogResult summarizes ImportCatalog.
type CatalogResult struct {
	Products chunk.ImportResult `json:"products"`
	Clients  int                `json:"clients"`
}

// ImportCatalog upserts the catalog products by id and appends its clients,
// skipping clients whose name and phone already exist.
func (s *Service) ImportCatalog(ctx context.Context, c *Catalog) (*CatalogResult, error) {
	products := make([]Product, len(c.Products))
	for i, p := range c.Products {
		products[i] = Product{
			ID:       p.ID,
			Name:     p.Name,
			Code:     p.Code,
			Category: p.Category,
			Brand:    p.Brand,
			Cost:     p.Cost,
			Price:    p.Price,
			MinStock: p.MinStock,
			Stock:    p.Stock,
		}
	}
	res := &CatalogResult{}
	var err error
	if len(products) > 0 {
		if res.Products, err = s.ImportProducts(ctx, products); err != nil {
			return res, err
		}
	}
	if len(c.Clients) == 0 {
		return res, nil
	}
	existing, err := s.ListClients(ctx)
	if err != nil {
		return res, err
	}
	seen := map[[2]string]bool{}
	for _, e := range existing {
		seen[[2]string{e.Name, digits(e.Phone)}] = true
	}
	for _, cc := range c.Clients {
		k := [2]string{cc.Name, digits(cc.Phone)}
		if seen[k] {
			continue
		}
		if _, err := s.CreateClient(ctx, Client{Name: cc.Name, Phone: cc.Phone, Email: cc.Email, TaxID: cc.TaxID, Address: cc.Address}); err != nil {
			return res, err
		}
		seen[k] = true
		res.Clients++
	}
	return res, nil
}

// ImportCatalogFile reads and imports a YAML catalog file.
func (s *Service) ImportCatalogFile(ctx context.Context, path string) (*CatalogResult, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is an operator-supplied flag
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	c, err := ParseCatalog(f)
	if err != nil {
		return nil, err
	}
	return s.ImportCatalog(ctx, c)
}
