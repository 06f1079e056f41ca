package pos

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is wrapped by every input validation failure.
	ErrInvalid = errors.New("invalid request")
	// ErrForbidden is returned when the viewer may not see or change a record.
	ErrForbidden = errors.New("forbidden")
	// ErrTransition is returned for a status change that is not allowed.
	ErrTransition = errors.New("status change not allowed")
	// ErrSessionOpen is returned when opening a second cash session.
	ErrSessionOpen = errors.New("a cash session is already open")
	// ErrNoSession is returned when no cash session is open.
	ErrNoSession = errors.New("no open cash session")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// InsufficientStockError rejects a checkout line.
type InsufficientStockError struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q at %s: %d available, %d requested", e.Name, e.Location, e.Available, e.Requested)
}
