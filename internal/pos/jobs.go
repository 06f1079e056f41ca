package pos

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/maruel/tallerdb/internal/chunk"
)

// JobInput is a device received at the workshop.
type JobInput struct {
	ClientID       string `json:"clientId,omitempty"`
	ClientName     string `json:"clientName,omitempty"`
	ClientPhone    string `json:"clientPhone,omitempty"`
	Device         string `json:"device"`
	Problem        string `json:"problem"`
	TechnicianID   string `json:"technicianId,omitempty"`
	TechnicianName string `json:"technicianName,omitempty"`
	Estimate       Money  `json:"estimate,omitempty"`
}

// CreateJob registers a job as received. Writes are not capacity guarded.
func (s *Service) CreateJob(ctx context.Context, v Viewer, in JobInput) (*Job, error) {
	j := Job{
		ClientName:     strings.TrimSpace(in.ClientName),
		ClientPhone:    strings.TrimSpace(in.ClientPhone),
		Device:         strings.TrimSpace(in.Device),
		Problem:        strings.TrimSpace(in.Problem),
		TechnicianID:   in.TechnicianID,
		TechnicianName: in.TechnicianName,
		Estimate:       in.Estimate,
		Status:         JobReceived,
		Created:        s.stamp(),
	}
	if j.TechnicianID == "" && !v.SeesAllJobs() {
		// Otherwise the creator could not see the job.
		j.TechnicianID = v.ID
		j.TechnicianName = v.Name
	}
	if in.ClientID != "" {
		c, err := s.Clients.Find(ctx, in.ClientID)
		if err != nil {
			return nil, err
		}
		j.ClientID = c.ID()
		j.ClientName = c.String("name")
		if j.ClientPhone == "" {
			j.ClientPhone = c.String("phone")
		}
	}
	if j.ClientName == "" || j.Device == "" || j.Problem == "" {
		return nil, invalid("client, device and problem are required")
	}
	if j.Estimate < 0 {
		return nil, invalid("estimate must not be negative")
	}
	j.Notes = []JobNote{{At: j.Created, AuthorID: v.ID, Author: v.Name, Text: "Recibido: " + j.Problem}}
	rec, err := encode(&j)
	if err != nil {
		return nil, err
	}
	delete(rec, chunk.FieldChunkDoc)
	delete(rec, chunk.FieldID)
	if rec, err = s.Jobs.Append(ctx, rec); err != nil {
		return nil, err
	}
	return decode[Job](rec)
}

func canSeeJob(v Viewer, j *Job) bool {
	return v.SeesAllJobs() || j.TechnicianID == v.ID
}

// GetJob returns a job visible to v.
func (s *Service) GetJob(ctx context.Context, v Viewer, ref chunk.Ref) (*Job, error) {
	rec, err := s.Jobs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	j, err := decode[Job](rec)
	if err != nil {
		return nil, err
	}
	if !canSeeJob(v, j) {
		return nil, fmt.Errorf("%w: job %s", ErrForbidden, ref)
	}
	return j, nil
}

// ListJobs returns the jobs visible to v, most recent first. Users without
// admin only see jobs assigned to them.
func (s *Service) ListJobs(ctx context.Context, v Viewer, status string) ([]*Job, error) {
	recs, err := s.Jobs.List(ctx, chunk.NewestFirst)
	if err != nil {
		return nil, err
	}
	all, err := decodeAll[Job](recs)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(all))
	for _, j := range all {
		if canSeeJob(v, j) && (status == "" || j.Status == status) {
			out = append(out, j)
		}
	}
	return out, nil
}

// mutateJob applies fn to a visible job inside a transaction.
func (s *Service) mutateJob(ctx context.Context, v Viewer, ref chunk.Ref, fn func(j *Job) (map[string]any, error)) (*Job, error) {
	err := s.Jobs.Mutate(ctx, ref, func(rec chunk.Record) (map[string]any, error) {
		j, err := decode[Job](rec)
		if err != nil {
			return nil, err
		}
		if !canSeeJob(v, j) {
			return nil, fmt.Errorf("%w: job %s", ErrForbidden, ref)
		}
		fields, err := fn(j)
		if err != nil {
			return nil, err
		}
		fields[chunk.FieldUpdatedAt] = chunk.Timestamp(s.stamp())
		return fields, nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, v, ref)
}

// SetJobStatus moves a job along recibido, en_reparacion, listo, entregado.
// A job that is not delivered can be cancelled, and a ready job can go back
// to repair.
func (s *Service) SetJobStatus(ctx context.Context, v Viewer, ref chunk.Ref, status string) (*Job, error) {
	return s.mutateJob(ctx, v, ref, func(j *Job) (map[string]any, error) {
		if !slices.Contains(jobTransitions[j.Status], status) {
			return nil, fmt.Errorf("%w: job %s from %s to %s", ErrTransition, ref, j.Status, status)
		}
		now := s.stamp()
		notes := append(j.Notes, JobNote{At: now, AuthorID: v.ID, Author: v.Name, Text: "Estado: " + status})
		fields := map[string]any{chunk.FieldStatus: status, "notes": notes}
		if status == JobDelivered {
			fields["deliveredAt"] = chunk.Timestamp(now)
		}
		return fields, nil
	})
}

// AddJobNote appends a note.
func (s *Service) AddJobNote(ctx context.Context, v Viewer, ref chunk.Ref, text string) (*Job, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("note text is required")
	}
	return s.mutateJob(ctx, v, ref, func(j *Job) (map[string]any, error) {
		return map[string]any{"notes": append(j.Notes, JobNote{At: s.stamp(), AuthorID: v.ID, Author: v.Name, Text: text})}, nil
	})
}

// JobUpdate lists the job fields to change; nil fields are kept.
type JobUpdate struct {
	Device         *string `json:"device,omitempty"`
	Problem        *string `json:"problem,omitempty"`
	TechnicianID   *string `json:"technicianId,omitempty"`
	TechnicianName *string `json:"technicianName,omitempty"`
	Estimate       *Money  `json:"estimate,omitempty"`
}

// UpdateJob changes descriptive fields or reassigns the job.
func (s *Service) UpdateJob(ctx context.Context, v Viewer, ref chunk.Ref, u JobUpdate) (*Job, error) {
	fields := map[string]any{}
	for key, p := range map[string]*string{"device": u.Device, "problem": u.Problem, "technicianId": u.TechnicianID, "technicianName": u.TechnicianName} {
		if p != nil {
			fields[key] = strings.TrimSpace(*p)
		}
	}
	if u.Estimate != nil {
		if *u.Estimate < 0 {
			return nil, invalid("estimate must not be negative")
		}
		fields["estimate"] = int64(*u.Estimate)
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}
	return s.mutateJob(ctx, v, ref, func(*Job) (map[string]any, error) { return fields, nil })
}

// DeleteJob removes the job.
func (s *Service) DeleteJob(ctx context.Context, v Viewer, ref chunk.Ref) error {
	if _, err := s.GetJob(ctx, v, ref); err != nil {
		return err
	}
	return s.Jobs.HardDelete(ctx, ref)
}
