package domain

import "time"

// StageTimeRecord is the persisted timing state of a single stage.
type StageTimeRecord struct {
	StartTime *time.Time // last (re)start; nil if never started
	EndTime   *time.Time // last stop; nil while running
	TotalTime time.Duration
	ActorID   string
	ActorName string
}

// Running reports whether the last session was started and never stopped.
func (r StageTimeRecord) Running() bool {
	return r.StartTime != nil && r.EndTime == nil
}

// TimeTrackingRecord holds the stage times of one case.
type TimeTrackingRecord struct {
	CaseID      string
	StageTimes  map[Stage]StageTimeRecord
	TotalTime   time.Duration // derived sum over StageTimes
	LastUpdated time.Time
}

// Stage returns the record for s, if one exists.
func (r TimeTrackingRecord) Stage(s Stage) (StageTimeRecord, bool) {
	if r.StageTimes == nil {
		return StageTimeRecord{}, false
	}
	st, ok := r.StageTimes[s]
	return st, ok
}

// SumStages adds up the totals of all stages.
func (r TimeTrackingRecord) SumStages() time.Duration {
	var sum time.Duration
	for _, st := range r.StageTimes {
		sum += st.TotalTime
	}
	return sum
}

// StageMeta is the optional payload sent with a stage update.
type StageMeta struct {
	TotalTime     *time.Duration
	SavedTime     *time.Duration
	NewTime       *time.Duration
	InspectorID   string
	InspectorName string
}

// StageUpdate is a single stop-time write for one stage of a case.
type StageUpdate struct {
	CaseID    string
	Stage     Stage
	StartTime time.Time
	EndTime   time.Time
	Meta      StageMeta
}

// StageTiming is what a timer reports when it stops.
type StageTiming struct {
	StartTime time.Time     // original start persisted for the stage
	EndTime   time.Time
	TotalTime time.Duration // accumulated, including this session
	SavedTime time.Duration // baseline before this session
	NewTime   time.Duration // TotalTime - SavedTime
}
