package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casetimer/internal/domain"
	"casetimer/internal/ports"
)

// ErrInvalidUpdate wraps validation failures of a stage update.
var ErrInvalidUpdate = errors.New("invalid stage update")

// TimeTrackingUseCase implements the backend side of stage time tracking.
type TimeTrackingUseCase struct {
	Log  *slog.Logger
	Repo ports.Repository
	Now  func() time.Time // defaults to time.Now
}

// Get returns the record of a case, or ports.ErrNotFound.
func (uc *TimeTrackingUseCase) Get(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error) {
	if uc.Repo == nil {
		return domain.TimeTrackingRecord{}, errors.New("usecase not initialized: missing repository")
	}
	if caseID == "" {
		return domain.TimeTrackingRecord{}, fmt.Errorf("%w: missing case id", ErrInvalidUpdate)
	}
	return uc.Repo.GetTimeTracking(ctx, caseID)
}

// UpdateStage stores a stop-time write for one stage. The record is created on
// first write. There is no concurrency check: the latest write wins.
func (uc *TimeTrackingUseCase) UpdateStage(ctx context.Context, u domain.StageUpdate) (domain.TimeTrackingRecord, error) {
	if uc.Repo == nil {
		return domain.TimeTrackingRecord{}, errors.New("usecase not initialized: missing repository")
	}
	if err := validate(u); err != nil {
		return domain.TimeTrackingRecord{}, err
	}

	prevRec, err := uc.Repo.GetTimeTracking(ctx, u.CaseID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return domain.TimeTrackingRecord{}, err
	}
	prev, _ := prevRec.Stage(u.Stage)

	start, end := u.StartTime.UTC(), u.EndTime.UTC()
	rec := domain.StageTimeRecord{
		StartTime: &start,
		EndTime:   &end,
		ActorID:   prev.ActorID,
		ActorName: prev.ActorName,
	}
	if u.Meta.TotalTime != nil {
		rec.TotalTime = *u.Meta.TotalTime
	} else {
		rec.TotalTime = prev.TotalTime + end.Sub(start)
	}
	if u.Meta.InspectorID != "" || u.Meta.InspectorName != "" {
		rec.ActorID, rec.ActorName = u.Meta.InspectorID, u.Meta.InspectorName
	}

	if err := uc.Repo.UpsertStage(ctx, u.CaseID, u.Stage, rec, uc.now()); err != nil {
		return domain.TimeTrackingRecord{}, err
	}
	uc.Log.Info("stage time updated",
		slog.String("case", u.CaseID),
		slog.String("stage", u.Stage.String()),
		slog.Duration("total", rec.TotalTime),
	)
	return uc.Repo.GetTimeTracking(ctx, u.CaseID)
}

func validate(u domain.StageUpdate) error {
	switch {
	case u.CaseID == "":
		return fmt.Errorf("%w: missing case id", ErrInvalidUpdate)
	case !u.Stage.Valid():
		return fmt.Errorf("%w: %w: %q", ErrInvalidUpdate, domain.ErrUnknownStage, u.Stage)
	case u.StartTime.IsZero() || u.EndTime.IsZero():
		return fmt.Errorf("%w: start and end time are required", ErrInvalidUpdate)
	case u.EndTime.Before(u.StartTime):
		return fmt.Errorf("%w: end time before start time", ErrInvalidUpdate)
	case u.Meta.TotalTime != nil && *u.Meta.TotalTime < 0:
		return fmt.Errorf("%w: negative total time", ErrInvalidUpdate)
	}
	return nil
}

func (uc *TimeTrackingUseCase) now() time.Time {
	if uc.Now != nil {
		return uc.Now().UTC()
	}
	return time.Now().UTC()
}
