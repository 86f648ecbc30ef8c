// Package orchestrator drives a deployment to a safe end state: it
// applies a manifest, waits for the rollout to converge, validates
// runtime health, and reverts to the previously captured revision when
// any of those gates fails.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/github/deploy-orchestrator/pkg/metrics"

	"k8s.io/client-go/kubernetes"
)

// Orchestrator runs the deploy pipeline against a cluster. It holds no
// per-run state: everything a run produces travels in a DeploymentRun
// value and the returned Result.
type Orchestrator struct {
	clientset kubernetes.Interface
	cfg       Config
}

// New creates an Orchestrator for the given cluster client and config.
func New(clientset kubernetes.Interface, cfg Config) (*Orchestrator, error) {
	if clientset == nil {
		return nil, errors.New("kubernetes clientset is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		clientset: clientset,
		cfg:       cfg,
	}, nil
}

// Deploy runs the pipeline once: capture the current revision, apply
// the manifest, await rollout convergence, validate health. Each gate is
// attempted exactly once; the first failing gate short-circuits into the
// rollback path and terminates the run. The returned error is nil only
// for OutcomeSuccess and is a *GateError otherwise, naming the failing
// gate.
func (o *Orchestrator) Deploy(ctx context.Context) (Result, error) {
	run := DeploymentRun{
		Target: DeploymentTarget{
			App:       o.cfg.App,
			Namespace: o.cfg.Namespace,
		},
		ManifestPath: o.cfg.ManifestPath,
	}

	slog.Info("starting deployment",
		"app", run.Target.App,
		"namespace", run.Target.Namespace,
		"manifest", run.ManifestPath,
	)

	// Capture the rollback target strictly before mutating anything.
	// An empty revision is the normal first-deployment case, not an
	// error.
	run.RollbackTo = o.currentRevision(ctx, run.Target)
	if run.RollbackTo == "" {
		slog.Info("no prior revision recorded (first deployment)")
	} else {
		slog.Info("captured rollback target",
			"revision", run.RollbackTo,
		)
	}

	img, err := o.timedGate(GateApply, func() (string, error) {
		return o.apply(ctx, run)
	})
	if err != nil {
		return o.failAndRollback(ctx, run, &GateError{Gate: GateApply, Err: err})
	}
	slog.Info("manifest applied",
		"app", run.Target.App,
	)

	slog.Info("waiting for rollout to complete",
		"timeout", o.cfg.RolloutTimeout,
	)
	if _, err := o.timedGate(GateRollout, func() (string, error) {
		return "", o.awaitRollout(ctx, run.Target)
	}); err != nil {
		return o.failAndRollback(ctx, run, &GateError{Gate: GateRollout, Err: err})
	}

	slog.Info("running health checks",
		"timeout", o.cfg.HealthTimeout,
	)
	digest, err := o.timedGate(GateHealth, func() (string, error) {
		return o.validateHealth(ctx, run.Target)
	})
	if err != nil {
		return o.failAndRollback(ctx, run, &GateError{Gate: GateHealth, Err: err})
	}

	slog.Info("deployment successful",
		"app", run.Target.App,
		"namespace", run.Target.Namespace,
	)
	metrics.DeploysTotal.WithLabelValues(string(OutcomeSuccess)).Inc()

	return Result{
		Outcome:          OutcomeSuccess,
		PreviousRevision: run.RollbackTo,
		Image:            img,
		Digest:           digest,
	}, nil
}

// failAndRollback is the single recovery path: every fatal gate failure
// funnels through here, regardless of which gate failed or why. The run
// is reported as failed even when the rollback request is accepted.
func (o *Orchestrator) failAndRollback(ctx context.Context, run DeploymentRun, gerr *GateError) (Result, error) {
	metrics.GateFailed.WithLabelValues(string(gerr.Gate)).Inc()
	slog.Error("deployment gate failed",
		"gate", gerr.Gate,
		"app", run.Target.App,
		"error", gerr.Err,
	)

	outcome := o.rollback(ctx, run)
	metrics.DeploysTotal.WithLabelValues(string(outcome)).Inc()

	return Result{
		Outcome:          outcome,
		PreviousRevision: run.RollbackTo,
	}, gerr
}

// timedGate records the duration of one gate attempt.
func (o *Orchestrator) timedGate(gate GateKind, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	metrics.GateTimer.WithLabelValues(string(gate)).Observe(time.Since(start).Seconds())
	return out, err
}
