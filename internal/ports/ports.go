package ports

import (
	"context"
	"errors"
	"time"

	"casetimer/internal/domain"
)

// ErrNotFound is returned when no time tracking exists for a case yet.
var ErrNotFound = errors.New("time tracking not found")

// TimeTrackingStore is the view a stage timer has of the backend:
// one read when it binds, one write per stop.
type TimeTrackingStore interface {
	FetchTimeTracking(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error)
	UpdateStageTime(ctx context.Context, update domain.StageUpdate) error
}

// Repository persists time tracking records on the backend side.
// UpsertStage replaces the stage row and refreshes the case totals; last write wins.
type Repository interface {
	GetTimeTracking(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error)
	UpsertStage(ctx context.Context, caseID string, stage domain.Stage, rec domain.StageTimeRecord, at time.Time) error
}

// TokenSource supplies the bearer credential for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("missing api token")
	}
	return string(t), nil
}
