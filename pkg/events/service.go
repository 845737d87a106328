package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStatusLocked is returned when a moderation action targets an event that
// has already been approved or rejected.
var ErrStatusLocked = errors.New("event status is locked")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Patch carries a moderator field edit. ClearEndAt distinguishes "set end to
// null" from "leave end alone".
type Patch struct {
	Title      *string
	Place      *string
	StartAt    *time.Time
	EndAt      *time.Time
	ClearEndAt bool
}

// Store is the slice of the repository the moderation service needs.
type Store interface {
	Get(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) (*Event, error)
	Delete(ctx context.Context, id string) error
	ListBetween(ctx context.Context, from, to time.Time, status string) ([]Event, error)
}

// Service implements the moderation rules on top of the repository: status
// transitions and field edits are only allowed while an event is still
// draft or pending.
type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, from, to time.Time, status string) ([]Event, error) {
	return s.repo.ListBetween(ctx, from, to, status)
}

// SetStatus approves or rejects a draft/pending event. Once set, the status
// is final: ingestion never undoes it and neither does this method.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Event, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != StatusApproved && status != StatusRejected {
		return nil, ValidationError{reason: fmt.Errorf("status must be %s or %s", StatusApproved, StatusRejected)}
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Moderatable() {
		return nil, fmt.Errorf("cannot change status from %s: %w", current.Status, ErrStatusLocked)
	}

	return s.repo.Update(ctx, id, map[string]interface{}{"status": status})
}

// Edit applies a moderator field patch to a draft/pending event.
func (s *Service) Edit(ctx context.Context, id string, patch Patch) (*Event, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Moderatable() {
		return nil, fmt.Errorf("cannot edit event in status %s: %w", current.Status, ErrStatusLocked)
	}

	fields := map[string]interface{}{}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, ValidationError{reason: errors.New("title is required")}
		}
		fields["title"] = title
	}

	if patch.Place != nil {
		fields["place"] = strings.TrimSpace(*patch.Place)
	}

	nextStart := current.StartAt
	nextEnd := current.EndAt

	if patch.StartAt != nil {
		nextStart = *patch.StartAt
		fields["start_at"] = nextStart
	}

	if patch.ClearEndAt {
		nextEnd = nil
		fields["end_at"] = nil
	} else if patch.EndAt != nil {
		nextEnd = patch.EndAt
		fields["end_at"] = nextEnd
	}

	if nextEnd != nil && !nextEnd.After(nextStart) {
		return nil, ValidationError{reason: errors.New("endAt must be after startAt")}
	}

	if len(fields) == 0 {
		return nil, ValidationError{reason: errors.New("no fields to update")}
	}

	return s.repo.Update(ctx, id, fields)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
