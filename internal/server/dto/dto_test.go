package dto

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("Expected status code %d, got %d", http.StatusNotFound, err.StatusCode())
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("Expected code %s, got %s", ErrorCodeNotFound, err.Code())
		}
		if err.Error() != "resource not found" {
			t.Errorf("Expected message 'resource not found', got '%s'", err.Error())
		}
		if err.Details() == nil {
			t.Error("Expected Details() to return non-nil map")
		}
	})
	t.Run("WithDetails", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusConflict, code: ErrorCodeInsufficientStock}).
			WithDetails(map[string]any{"productId": "p1", "available": 2}).
			WithDetail("requested", 5)
		d := err.Details()
		if d["productId"] != "p1" || d["available"] != 2 || d["requested"] != 5 {
			t.Errorf("Details = %v", d)
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		orig := errors.New("original error")
		err := InternalWithError("wrapped error", orig)
		if !errors.Is(err, orig) {
			t.Error("Expected Unwrap() to return the original error")
		}
		if err.Error() != "wrapped error: original error" {
			t.Errorf("got '%s'", err.Error())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("sale"), http.StatusNotFound, ErrorCodeNotFound},
		{"BadRequest", BadRequest("x"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"MissingField", MissingField("name"), http.StatusBadRequest, ErrorCodeMissingField},
		{"Forbidden", Forbidden("x"), http.StatusForbidden, ErrorCodeForbidden},
		{"Unauthorized", Unauthorized("x"), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"Conflict", Conflict("x"), http.StatusConflict, ErrorCodeConflict},
		{"NotImplemented", NotImplemented("payments"), http.StatusNotImplemented, ErrorCodeNotImplemented},
		{"RateLimitExceeded", RateLimitExceeded(30), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.StatusCode() != tc.status {
				t.Errorf("status = %d, want %d", tc.err.StatusCode(), tc.status)
			}
			if tc.err.Code() != tc.code {
				t.Errorf("code = %s, want %s", tc.err.Code(), tc.code)
			}
		})
	}
	if got := MissingField("name").Error(); got != "Missing required field: name" {
		t.Errorf("MissingField message = %q", got)
	}
	if got := RateLimitExceeded(30).Details()["retry_after"]; got != 30 {
		t.Errorf("retry_after = %v", got)
	}
}

func TestValidate(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name string
		req  Validatable
		ok   bool
	}{
		{"login ok", &LoginRequest{Email: "a@b.c", Password: "x"}, true},
		{"login no password", &LoginRequest{Email: "a@b.c"}, false},
		{"register no name", &RegisterRequest{Email: "a@b.c", Password: "x", Name: " "}, false},
		{"path missing id", &RecordPath{Chunk: "0001"}, false},
		{"update product path", &UpdateProductRequest{RecordPath: RecordPath{Chunk: "0001", ID: "p1"}}, true},
		{"adjust zero", &AdjustStockRequest{RecordPath: RecordPath{Chunk: "0001", ID: "p1"}}, false},
		{"checkout empty", &CheckoutRequest{}, false},
		{"checkout", &CheckoutRequest{pos.CheckoutInput{Lines: []pos.LineInput{{ProductID: "p1", Quantity: 1}}}}, true},
		{"sales window", &ListSalesRequest{From: from, To: from.Add(-time.Hour)}, false},
		{"budget days", &CreateBudgetRequest{pos.BudgetInput{Lines: []pos.LineInput{{Name: "x", Quantity: 1}}, ValidDays: -1}}, false},
		{"status", &SetStatusRequest{RecordPath: RecordPath{Chunk: "c", ID: "i"}}, false},
		{"job", &CreateJobRequest{pos.JobInput{Device: "phone"}}, false},
		{"note", &AddNoteRequest{RecordPath: RecordPath{Chunk: "c", ID: "i"}, Text: "ok"}, true},
		{"movement", &MovementRequest{Kind: pos.CashIncome, Amount: 0}, false},
		{"open", &OpenSessionRequest{Opening: -1}, false},
		{"close", &CloseSessionRequest{Counted: 100}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v", err)
			}
			if err != nil {
				var ews ErrorWithStatus
				if !errors.As(err, &ews) || ews.StatusCode() != http.StatusBadRequest {
					t.Errorf("want a 400 APIError, got %v", err)
				}
			}
		})
	}
}

func TestNewUserResponse(t *testing.T) {
	u := &identity.User{
		ID:          ksid.NewID(),
		Email:       "ana@example.com",
		Name:        "Ana",
		Permissions: identity.Permissions{identity.PermCash, identity.PermSales},
		Created:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	r := NewUserResponse(u)
	if r.ID != u.ID.String() || r.Created != "2026-03-02T10:00:00Z" {
		t.Errorf("got %+v", r)
	}
	if len(r.Permissions) != 2 || r.Permissions[0] != "cash" {
		t.Errorf("Permissions = %v", r.Permissions)
	}
}
