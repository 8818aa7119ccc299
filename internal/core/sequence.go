package core

import (
	"fmt"

	"github.com/eleven-am/gridboot/internal/domain"
)

// Phase is a step of the start sequence. Phases only move forward by one.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfigured
	PhaseStarted
	PhaseActivated
	PhaseBaselineSet
	PhaseDatasetReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConfigured:
		return "configured"
	case PhaseStarted:
		return "started"
	case PhaseActivated:
		return "activated"
	case PhaseBaselineSet:
		return "baseline_set"
	case PhaseDatasetReady:
		return "dataset_ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type sequence struct {
	phase Phase
}

func (s *sequence) advance(to Phase) error {
	if to != s.phase+1 {
		return domain.NewValidationError(
			"illegal start sequence transition",
			nil,
			domain.WithComponent("core.sequence"),
			domain.WithContextDetail("from", s.phase.String()),
			domain.WithContextDetail("to", to.String()),
		)
	}
	s.phase = to
	return nil
}
