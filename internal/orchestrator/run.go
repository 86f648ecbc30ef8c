package orchestrator

import (
	"fmt"
)

// DeploymentTarget is the immutable identity of the thing being deployed.
type DeploymentTarget struct {
	App       string
	Namespace string
}

// Revision is the control plane's identifier for one historical
// configuration of a deployment. It is carried verbatim back to the
// control plane when a rollback is requested; the orchestrator never
// computes on it beyond picking the newest one. An empty Revision means
// "no revision" (first deployment).
type Revision string

// DeploymentRun is the state of a single deploy operation, threaded by
// value through the pipeline gates. RollbackTo is captured exactly once,
// before the manifest is applied, and never overwritten afterward, so a
// failed run always reverts to pre-deploy state.
type DeploymentRun struct {
	Target       DeploymentTarget
	ManifestPath string
	RollbackTo   Revision
}

// Outcome is the terminal, externally observable state of one deploy run.
type Outcome string

const (
	// OutcomeSuccess means every gate passed.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailedNoRollback means a gate failed and there was no
	// prior revision to revert to (first deployment).
	OutcomeFailedNoRollback Outcome = "failed_no_rollback"
	// OutcomeFailedRolledBack means a gate failed and the control
	// plane accepted the rollback request.
	OutcomeFailedRolledBack Outcome = "failed_rolled_back"
	// OutcomeFailedRollbackFailed means a gate failed and the
	// rollback request itself was rejected.
	OutcomeFailedRollbackFailed Outcome = "failed_rollback_failed"
)

// Success reports whether the run reached its desired end state.
func (o Outcome) Success() bool {
	return o == OutcomeSuccess
}

// GateKind identifies the pipeline gate a failure came from.
type GateKind string

const (
	// GateApply is the manifest submission gate.
	GateApply GateKind = "apply"
	// GateRollout is the rollout convergence gate.
	GateRollout GateKind = "rollout"
	// GateHealth is the runtime health validation gate.
	GateHealth GateKind = "health"
)

// GateError reports the failure of one pipeline gate. Read-only query
// failures are never a GateError: they are absorbed where they happen
// and map to "nothing to report" states.
type GateError struct {
	Gate GateKind
	Err  error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s gate failed: %s", e.Gate, e.Err.Error())
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// Result is what one deploy run reports back to the caller. Image and
// Digest identify what ended up serving traffic on a successful run and
// are empty otherwise.
type Result struct {
	Outcome          Outcome
	PreviousRevision Revision
	Image            string
	Digest           string
}
