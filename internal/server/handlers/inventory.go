// Handles products and stock.

package handlers

import (
	"context"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// InventoryHandler handles product requests.
type InventoryHandler struct {
	pos *pos.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(svc *Services) *InventoryHandler {
	return &InventoryHandler{pos: svc.POS}
}

// ListProducts lists products by name, or only those low on stock.
func (h *InventoryHandler) ListProducts(ctx context.Context, _ *identity.User, req *dto.ListProductsRequest) (*dto.ProductsResponse, error) {
	var products []*pos.Product
	var err error
	if req.Low != "" && req.Low != "0" && req.Low != "false" {
		products, err = h.pos.LowStock(ctx)
	} else {
		products, err = h.pos.ListProducts(ctx)
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.ProductsResponse{Products: products}, nil
}

// GetProduct returns one product.
func (h *InventoryHandler) GetProduct(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*pos.Product, error) {
	p, err := h.pos.GetProduct(ctx, req.Ref())
	return p, MapError(err)
}

// CreateProduct adds a product.
func (h *InventoryHandler) CreateProduct(ctx context.Context, _ *identity.User, req *dto.CreateProductRequest) (*pos.Product, error) {
	p, err := h.pos.CreateProduct(ctx, req.Product)
	return p, MapError(err)
}

// ImportProducts upserts a batch of products.
func (h *InventoryHandler) ImportProducts(ctx context.Context, _ *identity.User, req *dto.ImportProductsRequest) (*dto.ImportResponse, error) {
	res, err := h.pos.ImportProducts(ctx, req.Products)
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.ImportResponse{ImportResult: res}, nil
}

// UpdateProduct changes product fields.
func (h *InventoryHandler) UpdateProduct(ctx context.Context, _ *identity.User, req *dto.UpdateProductRequest) (*pos.Product, error) {
	p, err := h.pos.UpdateProduct(ctx, req.Ref(), req.ProductUpdate)
	return p, MapError(err)
}

// AdjustStock adds or removes units at one location.
func (h *InventoryHandler) AdjustStock(ctx context.Context, _ *identity.User, req *dto.AdjustStockRequest) (*dto.StockResponse, error) {
	n, err := h.pos.AdjustStock(ctx, req.Ref(), req.Location, req.Delta)
	if err != nil {
		return nil, MapError(err)
	}
	loc := req.Location
	if loc == "" {
		loc = h.pos.Locations()[0]
	}
	return &dto.StockResponse{Location: loc, Stock: n}, nil
}

// DeleteProduct removes a product.
func (h *InventoryHandler) DeleteProduct(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*dto.OKResponse, error) {
	if err := h.pos.DeleteProduct(ctx, req.Ref()); err != nil {
		return nil, MapError(err)
	}
	return &dto.OKResponse{OK: true}, nil
}
