package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memRepo struct {
	byID map[string]*Event
}

func newMemRepo(evs ...*Event) *memRepo {
	r := &memRepo{byID: map[string]*Event{}}
	for _, ev := range evs {
		r.byID[ev.ID] = ev
	}
	return r
}

func (r *memRepo) Get(_ context.Context, id string) (*Event, error) {
	ev, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, id string, fields map[string]interface{}) (*Event, error) {
	ev, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			ev.Status = v.(string)
		case "title":
			ev.Title = v.(string)
		case "place":
			ev.Place = v.(string)
		case "start_at":
			ev.StartAt = v.(time.Time)
		case "end_at":
			if v == nil {
				ev.EndAt = nil
			} else if ts, ok := v.(*time.Time); ok {
				ev.EndAt = ts
			}
		}
	}
	ev.UpdatedAt = ev.UpdatedAt.Add(time.Millisecond)
	cp := *ev
	return &cp, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) ListBetween(_ context.Context, from, to time.Time, status string) ([]Event, error) {
	var out []Event
	for _, ev := range r.byID {
		if ev.StartAt.Before(from) || !ev.StartAt.Before(to) {
			continue
		}
		if status != "" && ev.Status != status {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func pendingEvent(id string) *Event {
	return &Event{
		ID:      id,
		Status:  StatusPending,
		Title:   "Koncert",
		StartAt: time.Date(2027, 4, 12, 19, 0, 0, 0, time.UTC),
	}
}

func TestSetStatusApprovesPending(t *testing.T) {
	repo := newMemRepo(pendingEvent("e1"))
	svc := NewService(repo)

	saved, err := svc.SetStatus(context.Background(), "e1", "Approved")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if saved.Status != StatusApproved {
		t.Fatalf("status = %q", saved.Status)
	}
}

func TestSetStatusRefusesModeratedEvent(t *testing.T) {
	ev := pendingEvent("e1")
	ev.Status = StatusRejected
	svc := NewService(newMemRepo(ev))

	_, err := svc.SetStatus(context.Background(), "e1", "approved")
	if !errors.Is(err, ErrStatusLocked) {
		t.Fatalf("err = %v, want ErrStatusLocked", err)
	}
}

func TestSetStatusValidatesValue(t *testing.T) {
	svc := NewService(newMemRepo(pendingEvent("e1")))

	_, err := svc.SetStatus(context.Background(), "e1", "archived")
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestEditAppliesPatch(t *testing.T) {
	repo := newMemRepo(pendingEvent("e1"))
	svc := NewService(repo)

	title := "Koncert plenerowy"
	start := time.Date(2027, 4, 13, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	saved, err := svc.Edit(context.Background(), "e1", Patch{Title: &title, StartAt: &start, EndAt: &end})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if saved.Title != title || !saved.StartAt.Equal(start) {
		t.Fatalf("saved = %+v", saved)
	}
	if saved.EndAt == nil || !saved.EndAt.Equal(end) {
		t.Fatalf("end = %v", saved.EndAt)
	}
}

func TestEditRejectsEndBeforeStart(t *testing.T) {
	svc := NewService(newMemRepo(pendingEvent("e1")))

	end := time.Date(2027, 4, 12, 18, 0, 0, 0, time.UTC) // before the stored start
	_, err := svc.Edit(context.Background(), "e1", Patch{EndAt: &end})
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestEditRejectsEmptyTitle(t *testing.T) {
	svc := NewService(newMemRepo(pendingEvent("e1")))

	title := "   "
	_, err := svc.Edit(context.Background(), "e1", Patch{Title: &title})
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestEditClearsEnd(t *testing.T) {
	ev := pendingEvent("e1")
	end := ev.StartAt.Add(time.Hour)
	ev.EndAt = &end
	repo := newMemRepo(ev)
	svc := NewService(repo)

	saved, err := svc.Edit(context.Background(), "e1", Patch{ClearEndAt: true})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if saved.EndAt != nil {
		t.Fatalf("end = %v, want nil", saved.EndAt)
	}
}

func TestEditRefusesLockedEvent(t *testing.T) {
	ev := pendingEvent("e1")
	ev.Status = StatusApproved
	svc := NewService(newMemRepo(ev))

	title := "New title"
	_, err := svc.Edit(context.Background(), "e1", Patch{Title: &title})
	if !errors.Is(err, ErrStatusLocked) {
		t.Fatalf("err = %v, want ErrStatusLocked", err)
	}
}

func TestModerationStates(t *testing.T) {
	cases := []struct {
		status     string
		locked     bool
		moderatable bool
	}{
		{StatusDraft, false, true},
		{StatusPending, false, true},
		{StatusApproved, true, false},
		{StatusRejected, true, false},
	}
	for _, tc := range cases {
		ev := Event{Status: tc.status}
		if ev.Locked() != tc.locked {
			t.Errorf("%s: Locked = %v", tc.status, ev.Locked())
		}
		if ev.Moderatable() != tc.moderatable {
			t.Errorf("%s: Moderatable = %v", tc.status, ev.Moderatable())
		}
	}
}
