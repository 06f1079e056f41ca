package pos

import (
	"errors"
	"testing"
)

func TestJobs(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := t.Context()
	client, err := s.CreateClient(ctx, Client{Name: "Ana", Phone: "11 5555-0101"})
	if err != nil {
		t.Fatal(err)
	}
	mine, err := s.CreateJob(ctx, admin, JobInput{ClientID: client.ID, Device: "Moto G", Problem: "No carga", TechnicianID: tech.ID, TechnicianName: tech.Name, Estimate: 15000})
	if err != nil {
		t.Fatal(err)
	}
	if mine.Status != JobReceived || mine.ClientName != "Ana" || mine.ClientPhone != "11 5555-0101" || len(mine.Notes) != 1 {
		t.Errorf("job = %+v", mine)
	}
	other, err := s.CreateJob(ctx, admin, JobInput{ClientName: "Leo", Device: "iPhone", Problem: "Pantalla"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateJob(ctx, admin, JobInput{ClientName: "Leo"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("missing device err = %v", err)
	}

	t.Run("visibility", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, tech, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(jobs) != 1 || jobs[0].ID != mine.ID {
			t.Errorf("technician sees %v", jobs)
		}
		all, err := s.ListJobs(ctx, admin, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].ID != other.ID {
			t.Errorf("admin sees %v", all)
		}
		if _, err := s.GetJob(ctx, tech, other.Ref()); !errors.Is(err, ErrForbidden) {
			t.Errorf("get other err = %v", err)
		}
		if _, err := s.AddJobNote(ctx, tech, other.Ref(), "hola"); !errors.Is(err, ErrForbidden) {
			t.Errorf("note on other err = %v", err)
		}
	})

	t.Run("unassigned job goes to its creator", func(t *testing.T) {
		j, err := s.CreateJob(ctx, tech, JobInput{ClientName: "Sol", Device: "Notebook", Problem: "No enciende"})
		if err != nil {
			t.Fatal(err)
		}
		if j.TechnicianID != tech.ID || j.TechnicianName != tech.Name {
			t.Errorf("technician = %q %q", j.TechnicianID, j.TechnicianName)
		}
		if _, err := s.GetJob(ctx, tech, j.Ref()); err != nil {
			t.Errorf("creator cannot read the job: %v", err)
		}
		if err := s.DeleteJob(ctx, admin, j.Ref()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("status", func(t *testing.T) {
		steps := []struct {
			status string
			ok     bool
		}{
			{JobReady, false},
			{JobRepairing, true},
			{JobReady, true},
			{JobRepairing, true},
			{JobReady, true},
			{JobDelivered, true},
			{JobCancelled, false},
		}
		for _, st := range steps {
			_, err := s.SetJobStatus(ctx, tech, mine.Ref(), st.status)
			if st.ok && err != nil {
				t.Fatalf("to %s: %v", st.status, err)
			}
			if !st.ok && !errors.Is(err, ErrTransition) {
				t.Fatalf("to %s: err = %v, want ErrTransition", st.status, err)
			}
		}
		j, err := s.GetJob(ctx, tech, mine.Ref())
		if err != nil {
			t.Fatal(err)
		}
		if j.Status != JobDelivered || j.Delivered.IsZero() {
			t.Errorf("job = %+v", j)
		}
		delivered, err := s.ListJobs(ctx, admin, JobDelivered)
		if err != nil {
			t.Fatal(err)
		}
		if len(delivered) != 1 {
			t.Errorf("%d delivered jobs", len(delivered))
		}
	})

	t.Run("notes and update", func(t *testing.T) {
		j, err := s.AddJobNote(ctx, admin, other.Ref(), "Pedir repuesto")
		if err != nil {
			t.Fatal(err)
		}
		if n := len(j.Notes); n != 2 || j.Notes[1].Text != "Pedir repuesto" || j.Notes[1].AuthorID != admin.ID {
			t.Errorf("notes = %+v", j.Notes)
		}
		if _, err := s.AddJobNote(ctx, admin, other.Ref(), " "); !errors.Is(err, ErrInvalid) {
			t.Errorf("blank note err = %v", err)
		}
		j, err = s.UpdateJob(ctx, admin, other.Ref(), JobUpdate{TechnicianID: ptr(tech.ID), Estimate: ptr(Money(9000))})
		if err != nil {
			t.Fatal(err)
		}
		if j.TechnicianID != tech.ID || j.Estimate != 9000 || j.Ref() != other.Ref() {
			t.Errorf("job = %+v", j)
		}
		if _, err := s.GetJob(ctx, tech, other.Ref()); err != nil {
			t.Errorf("reassigned job not visible: %v", err)
		}
		if err := s.DeleteJob(ctx, admin, other.Ref()); err != nil {
			t.Fatal(err)
		}
		if jobs, _ := s.ListJobs(ctx, admin, ""); len(jobs) != 1 {
			t.Errorf("%d jobs after delete", len(jobs))
		}
	})
}
