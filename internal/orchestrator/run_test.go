package orchestrator

import (
	"errors"
	"strings"
	"testing"
)

func TestOutcomeSuccess(t *testing.T) {
	if !OutcomeSuccess.Success() {
		t.Error("OutcomeSuccess.Success() = false, want true")
	}

	failed := []Outcome{
		OutcomeFailedNoRollback,
		OutcomeFailedRolledBack,
		OutcomeFailedRollbackFailed,
	}
	for _, outcome := range failed {
		if outcome.Success() {
			t.Errorf("%s.Success() = true, want false", outcome)
		}
	}
}

func TestGateError(t *testing.T) {
	cause := errors.New("replica set has timed out progressing")
	err := &GateError{Gate: GateRollout, Err: cause}

	if !strings.Contains(err.Error(), "rollout gate failed") {
		t.Errorf("Error() = %q, want it to name the gate", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should unwrap to the cause")
	}

	var gerr *GateError
	if !errors.As(error(err), &gerr) {
		t.Error("errors.As() should recover the *GateError")
	}
}
