// Package pos implements the point-of-sale and workshop business rules on top
// of chunked collections: inventory with per-location stock, checkout, sales,
// budgets, clients, workshop jobs and the cash register.
//
// Money amounts are integer cents.
package pos
