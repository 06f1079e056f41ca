package reqctx

import (
	"net/http/httptest"
	"testing"

	"github.com/maruel/tallerdb/internal/identity"
)

func TestGetClientIP(t *testing.T) {
	for _, tc := range []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"ipv4", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"ipv6", "[::1]:8080", nil, "::1"},
		{"ipv6 no port", "[2001:db8::1]", nil, "2001:db8::1"},
		{"no port", "example", nil, "example"},
		{"xff", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"xff single", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.6 "}, "203.0.113.6"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tc.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	ctx := t.Context()
	if ClientIP(ctx) != "" || UserAgent(ctx) != "" || User(ctx) != nil {
		t.Fatal("empty context should have no values")
	}
	u := &identity.User{Name: "Ana"}
	ctx = WithUser(WithUserAgent(WithClientIP(ctx, "192.0.2.1"), "curl"), u)
	if ClientIP(ctx) != "192.0.2.1" || UserAgent(ctx) != "curl" || User(ctx) != u {
		t.Error("values not round-tripped")
	}
}
