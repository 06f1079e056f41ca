package pos

import (
	"context"
	"strings"
	"unicode"

	"github.com/maruel/tallerdb/internal/chunk"
)

// CreateClient adds a client. Writes are not capacity guarded.
func (s *Service) CreateClient(ctx context.Context, c Client) (*Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, invalid("client name is required")
	}
	c.Phone = strings.TrimSpace(c.Phone)
	c.Created = s.stamp()
	rec, err := encode(&c)
	if err != nil {
		return nil, err
	}
	delete(rec, chunk.FieldChunkDoc)
	if c.ID == "" {
		delete(rec, chunk.FieldID)
	}
	if rec, err = s.Clients.Append(ctx, rec); err != nil {
		return nil, err
	}
	return decode[Client](rec)
}

// ClientUpdate lists the client fields to change; nil fields are kept.
type ClientUpdate struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	TaxID   *string `json:"taxId,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// UpdateClient changes client fields.
func (s *Service) UpdateClient(ctx context.Context, ref chunk.Ref, u ClientUpdate) (*Client, error) {
	fields := map[string]any{}
	for key, v := range map[string]*string{"name": u.Name, "phone": u.Phone, "email": u.Email, "taxId": u.TaxID, "address": u.Address, "notes": u.Notes} {
		if v != nil {
			fields[key] = strings.TrimSpace(*v)
		}
	}
	if n, ok := fields["name"]; ok && n == "" {
		return nil, invalid("client name is required")
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}
	if err := s.Clients.UpdateFields(ctx, ref, fields); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, ref)
}

// GetClient returns the client at ref.
func (s *Service) GetClient(ctx context.Context, ref chunk.Ref) (*Client, error) {
	rec, err := s.Clients.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decode[Client](rec)
}

// DeleteClient removes the client.
func (s *Service) DeleteClient(ctx context.Context, ref chunk.Ref) error {
	return s.Clients.HardDelete(ctx, ref)
}

// ListClients returns clients sorted by name.
func (s *Service) ListClients(ctx context.Context) ([]*Client, error) {
	recs, err := s.Clients.List(ctx, chunk.ByName)
	if err != nil {
		return nil, err
	}
	return decodeAll[Client](recs)
}

// SearchClients returns clients whose name contains q, case insensitive, or
// whose phone contains the digits of q.
func (s *Service) SearchClients(ctx context.Context, q string) ([]*Client, error) {
	all, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all, nil
	}
	qDigits := digits(q)
	var out []*Client
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), q) || (qDigits != "" && strings.Contains(digits(c.Phone), qDigits)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
