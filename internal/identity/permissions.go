package identity

import (
	"fmt"
	"slices"
)

// Permission is a capability flag granted to a user.
type Permission string

// Permissions known to the application.
const (
	// PermAdmin grants everything, including account management.
	PermAdmin Permission = "admin"
	// PermSales allows checkout and seeing one's own sales.
	PermSales Permission = "sales"
	// PermSalesAll allows seeing every seller's sales.
	PermSalesAll Permission = "sales_all"
	// PermInventory allows editing products and stock.
	PermInventory Permission = "inventory"
	// PermCash allows operating the cash register.
	PermCash Permission = "cash"
	// PermWorkshop allows working on workshop jobs.
	PermWorkshop Permission = "workshop"
	// PermBudgets allows creating and managing budgets.
	PermBudgets Permission = "budgets"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{PermAdmin, PermSales, PermSalesAll, PermInventory, PermCash, PermWorkshop, PermBudgets}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return slices.Contains(AllPermissions, p)
}

// Permissions is a set of flags, kept sorted and without duplicates.
type Permissions []Permission

// NewPermissions validates and normalizes ps.
func NewPermissions(ps ...Permission) (Permissions, error) {
	out := make(Permissions, 0, len(ps))
	for _, p := range ps {
		if !p.Valid() {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Has reports whether p is granted. Admin implies every permission.
func (ps Permissions) Has(p Permission) bool {
	return slices.Contains(ps, p) || slices.Contains(ps, PermAdmin)
}

// HasExact reports whether p is granted explicitly.
func (ps Permissions) HasExact(p Permission) bool {
	return slices.Contains(ps, p)
}
