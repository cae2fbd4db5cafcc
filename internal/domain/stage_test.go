package domain

import (
	"errors"
	"testing"
)

func TestParseStage(t *testing.T) {
	for _, s := range Stages {
		got, err := ParseStage(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStage(%q) = %q, %v", s, got, err)
		}
	}
	for _, bad := range []string{"", "Intake", "quote", "inspection "} {
		if _, err := ParseStage(bad); !errors.Is(err, ErrUnknownStage) {
			t.Errorf("ParseStage(%q) err = %v", bad, err)
		}
	}
}
