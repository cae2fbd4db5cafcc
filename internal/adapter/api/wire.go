package api

import (
	"encoding/json"
	"time"

	"casetimer/internal/domain"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TimeTracking mirrors the JSON of a case's time tracking record.
// Durations are milliseconds.
type TimeTracking struct {
	CaseID      string               `json:"caseId"`
	StageTimes  map[string]StageTime `json:"stageTimes"`
	TotalTime   int64                `json:"totalTime"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

type StageTime struct {
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	TotalTime *int64     `json:"totalTime,omitempty"`
	ActorID   string     `json:"inspectorId,omitempty"`
	ActorName string     `json:"inspectorName,omitempty"`
}

// StageUpdateRequest is the body of a stage time update.
type StageUpdateRequest struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Metadata  *StageMeta `json:"metadata,omitempty"`
}

type StageMeta struct {
	TotalTime     *int64 `json:"totalTime,omitempty"`
	SavedTime     *int64 `json:"savedTime,omitempty"`
	NewTime       *int64 `json:"newTime,omitempty"`
	InspectorID   string `json:"inspectorId,omitempty"`
	InspectorName string `json:"inspectorName,omitempty"`
}

// MarshalJSON keeps timestamps at millisecond precision.
func (r StageUpdateRequest) MarshalJSON() ([]byte, error) {
	type alias struct {
		StartTime string     `json:"startTime"`
		EndTime   string     `json:"endTime"`
		Metadata  *StageMeta `json:"metadata,omitempty"`
	}
	return json.Marshal(alias{
		StartTime: r.StartTime.UTC().Format(timeLayout),
		EndTime:   r.EndTime.UTC().Format(timeLayout),
		Metadata:  r.Metadata,
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func millis(d time.Duration) int64 { return d.Milliseconds() }

func fromMillis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func optMillis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	v := millis(*d)
	return &v
}

func optDuration(ms *int64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := fromMillis(*ms)
	return &d
}

// ToDomain maps the wire record, dropping unknown stage keys.
func (t TimeTracking) ToDomain() domain.TimeTrackingRecord {
	out := domain.TimeTrackingRecord{
		CaseID:      t.CaseID,
		StageTimes:  make(map[domain.Stage]domain.StageTimeRecord, len(t.StageTimes)),
		TotalTime:   fromMillis(t.TotalTime),
		LastUpdated: t.LastUpdated,
	}
	for k, v := range t.StageTimes {
		s, err := domain.ParseStage(k)
		if err != nil {
			continue
		}
		rec := domain.StageTimeRecord{
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			ActorID:   v.ActorID,
			ActorName: v.ActorName,
		}
		if v.TotalTime != nil {
			rec.TotalTime = fromMillis(*v.TotalTime)
		}
		out.StageTimes[s] = rec
	}
	return out
}

// FromDomain builds the wire record for rec.
func FromDomain(rec domain.TimeTrackingRecord) TimeTracking {
	out := TimeTracking{
		CaseID:      rec.CaseID,
		StageTimes:  make(map[string]StageTime, len(rec.StageTimes)),
		TotalTime:   millis(rec.TotalTime),
		LastUpdated: rec.LastUpdated,
	}
	for s, v := range rec.StageTimes {
		total := millis(v.TotalTime)
		out.StageTimes[s.String()] = StageTime{
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			TotalTime: &total,
			ActorID:   v.ActorID,
			ActorName: v.ActorName,
		}
	}
	return out
}

// NewStageUpdateRequest builds the request body for u.
func NewStageUpdateRequest(u domain.StageUpdate) StageUpdateRequest {
	req := StageUpdateRequest{StartTime: u.StartTime, EndTime: u.EndTime}
	m := u.Meta
	if m.TotalTime != nil || m.SavedTime != nil || m.NewTime != nil || m.InspectorID != "" || m.InspectorName != "" {
		req.Metadata = &StageMeta{
			TotalTime:     optMillis(m.TotalTime),
			SavedTime:     optMillis(m.SavedTime),
			NewTime:       optMillis(m.NewTime),
			InspectorID:   m.InspectorID,
			InspectorName: m.InspectorName,
		}
	}
	return req
}

// ToDomain maps the request back to an update for caseID and stage.
func (r StageUpdateRequest) ToDomain(caseID string, stage domain.Stage) domain.StageUpdate {
	u := domain.StageUpdate{
		CaseID:    caseID,
		Stage:     stage,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	}
	if r.Metadata != nil {
		u.Meta = domain.StageMeta{
			TotalTime:     optDuration(r.Metadata.TotalTime),
			SavedTime:     optDuration(r.Metadata.SavedTime),
			NewTime:       optDuration(r.Metadata.NewTime),
			InspectorID:   r.Metadata.InspectorID,
			InspectorName: r.Metadata.InspectorName,
		}
	}
	return u
}
