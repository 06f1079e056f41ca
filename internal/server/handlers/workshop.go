// Handles clients and workshop jobs.

package handlers

import (
	"context"

	"github.com/maruel/tallerdb/internal/identity"
	"github.com/maruel/tallerdb/internal/pos"
	"github.com/maruel/tallerdb/internal/server/dto"
)

// ClientHandler handles client requests.
type ClientHandler struct {
	pos *pos.Service
}

// NewClientHandler creates a new client handler.
func NewClientHandler(svc *Services) *ClientHandler {
	return &ClientHandler{pos: svc.POS}
}

// ListClients lists clients by name, or searches them.
func (h *ClientHandler) ListClients(ctx context.Context, _ *identity.User, req *dto.ListClientsRequest) (*dto.ClientsResponse, error) {
	var c []*pos.Client
	var err error
	if req.Q != "" {
		c, err = h.pos.SearchClients(ctx, req.Q)
	} else {
		c, err = h.pos.ListClients(ctx)
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.ClientsResponse{Clients: c}, nil
}

// GetClient returns one client.
func (h *ClientHandler) GetClient(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*pos.Client, error) {
	c, err := h.pos.GetClient(ctx, req.Ref())
	return c, MapError(err)
}

// CreateClient adds a client.
func (h *ClientHandler) CreateClient(ctx context.Context, _ *identity.User, req *dto.CreateClientRequest) (*pos.Client, error) {
	c, err := h.pos.CreateClient(ctx, req.Client)
	return c, MapError(err)
}

// UpdateClient changes client fields.
func (h *ClientHandler) UpdateClient(ctx context.Context, _ *identity.User, req *dto.UpdateClientRequest) (*pos.Client, error) {
	c, err := h.pos.UpdateClient(ctx, req.Ref(), req.ClientUpdate)
	return c, MapError(err)
}

// DeleteClient removes a client.
func (h *ClientHandler) DeleteClient(ctx context.Context, _ *identity.User, req *dto.RecordPath) (*dto.OKResponse, error) {
	if err := h.pos.DeleteClient(ctx, req.Ref()); err != nil {
		return nil, MapError(err)
	}
	return &dto.OKResponse{OK: true}, nil
}

// JobHandler handles workshop job requests.
type JobHandler struct {
	pos *pos.Service
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc *Services) *JobHandler {
	return &JobHandler{pos: svc.POS}
}

// CreateJob opens a job.
func (h *JobHandler) CreateJob(ctx context.Context, user *identity.User, req *dto.CreateJobRequest) (*pos.Job, error) {
	j, err := h.pos.CreateJob(ctx, viewer(user), req.JobInput)
	return j, MapError(err)
}

// ListJobs lists the jobs visible to the caller.
func (h *JobHandler) ListJobs(ctx context.Context, user *identity.User, req *dto.ListByStatusRequest) (*dto.JobsResponse, error) {
	j, err := h.pos.ListJobs(ctx, viewer(user), req.Status)
	if err != nil {
		return nil, MapError(err)
	}
	return &dto.JobsResponse{Jobs: j}, nil
}

// GetJob returns one job.
func (h *JobHandler) GetJob(ctx context.Context, user *identity.User, req *dto.RecordPath) (*pos.Job, error) {
	j, err := h.pos.GetJob(ctx, viewer(user), req.Ref())
	return j, MapError(err)
}

// SetJobStatus moves a job along its workflow.
func (h *JobHandler) SetJobStatus(ctx context.Context, user *identity.User, req *dto.SetStatusRequest) (*pos.Job, error) {
	j, err := h.pos.SetJobStatus(ctx, viewer(user), req.Ref(), req.Status)
	return j, MapError(err)
}

// AddJobNote appends a note.
func (h *JobHandler) AddJobNote(ctx context.Context, user *identity.User, req *dto.AddNoteRequest) (*pos.Job, error) {
	j, err := h.pos.AddJobNote(ctx, viewer(user), req.Ref(), req.Text)
	return j, MapError(err)
}

// UpdateJob changes job fields.
func (h *JobHandler) UpdateJob(ctx context.Context, user *identity.User, req *dto.UpdateJobRequest) (*pos.Job, error) {
	j, err := h.pos.UpdateJob(ctx, viewer(user), req.Ref(), req.JobUpdate)
	return j, MapError(err)
}

// DeleteJob removes a job.
func (h *JobHandler) DeleteJob(ctx context.Context, user *identity.User, req *dto.RecordPath) (*dto.OKResponse, error) {
	if err := h.pos.DeleteJob(ctx, viewer(user), req.Ref()); err != nil {
		return nil, MapError(err)
	}
	return &dto.OKResponse{OK: true}, nil
}
