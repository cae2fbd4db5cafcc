package memory

import (
	"context"
	"sync"
	"time"

	"casetimer/internal/domain"
	"casetimer/internal/ports"
)

// Repository implements ports.Repository in process memory.
type Repository struct {
	mu      sync.Mutex
	records map[string]domain.TimeTrackingRecord
}

func NewRepository() *Repository {
	return &Repository{records: make(map[string]domain.TimeTrackingRecord)}
}

// GetTimeTracking returns a copy of the record for caseID.
func (r *Repository) GetTimeTracking(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[caseID]
	if !ok {
		return domain.TimeTrackingRecord{}, ports.ErrNotFound
	}
	return clone(rec), nil
}

// UpsertStage replaces the stage entry and refreshes the case totals.
func (r *Repository) UpsertStage(ctx context.Context, caseID string, stage domain.Stage, st domain.StageTimeRecord, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[caseID]
	if !ok {
		rec = domain.TimeTrackingRecord{CaseID: caseID}
	}
	rec = clone(rec)
	rec.StageTimes[stage] = cloneStage(st)
	rec.TotalTime = rec.SumStages()
	rec.LastUpdated = at
	r.records[caseID] = rec
	return nil
}

func clone(rec domain.TimeTrackingRecord) domain.TimeTrackingRecord {
	out := rec
	out.StageTimes = make(map[domain.Stage]domain.StageTimeRecord, len(rec.StageTimes))
	for k, v := range rec.StageTimes {
		out.StageTimes[k] = cloneStage(v)
	}
	return out
}

func cloneStage(st domain.StageTimeRecord) domain.StageTimeRecord {
	if st.StartTime != nil {
		t := *st.StartTime
		st.StartTime = &t
	}
	if st.EndTime != nil {
		t := *st.EndTime
		st.EndTime = &t
	}
	return st
}
