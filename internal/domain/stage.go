package domain

import (
	"errors"
	"fmt"
)

// Stage names one phase of a case's workflow. Each stage is timed independently.
type Stage string

const (
	StageIntake             Stage = "intake"
	StageScheduleInspection Stage = "scheduleInspection"
	StageInspection         Stage = "inspection"
	StageQuotePreparation   Stage = "quotePreparation"
	StageQuoteAndDecision   Stage = "quoteAndDecision" // legacy key, stored separately from quotePreparation
	StageOfferDecision      Stage = "offerDecision"
	StagePaperwork          Stage = "paperwork"
	StageCompletion         Stage = "completion"
)

// ErrUnknownStage is returned by ParseStage for keys outside the fixed set.
var ErrUnknownStage = errors.New("unknown stage")

// Stages lists every accepted stage key in workflow order.
var Stages = []Stage{
	StageIntake,
	StageScheduleInspection,
	StageInspection,
	StageQuotePreparation,
	StageQuoteAndDecision,
	StageOfferDecision,
	StagePaperwork,
	StageCompletion,
}

func (s Stage) String() string { return string(s) }

// Valid reports whether s is one of the fixed stage keys.
func (s Stage) Valid() bool {
	for _, k := range Stages {
		if s == k {
			return true
		}
	}
	return false
}

// ParseStage maps a raw key to a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, v)
	}
	return s, nil
}
