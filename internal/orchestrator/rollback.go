package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/github/deploy-orchestrator/pkg/metrics"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// rollback is the single recovery mechanism for a failed run. If no
// revision was captured before the manifest was applied, nothing safe
// exists to revert to and no cluster mutation is attempted. Otherwise
// it issues one revert request and reports whether the control plane
// accepted it; it does not wait for the rolled-back state to converge,
// does not re-validate health, and does not retry.
func (o *Orchestrator) rollback(ctx context.Context, run DeploymentRun) Outcome {
	if run.RollbackTo == "" {
		slog.Warn("no previous revision to roll back to",
			"app", run.Target.App,
		)
		metrics.RollbacksSkipped.Inc()
		return OutcomeFailedNoRollback
	}

	slog.Info("rolling back",
		"app", run.Target.App,
		"revision", run.RollbackTo,
	)

	if err := o.undoRollout(ctx, run.Target, run.RollbackTo); err != nil {
		slog.Error("rollback request failed",
			"app", run.Target.App,
			"revision", run.RollbackTo,
			"error", err,
		)
		metrics.RollbacksFailed.Inc()
		return OutcomeFailedRollbackFailed
	}

	slog.Info("rollback initiated",
		"app", run.Target.App,
		"revision", run.RollbackTo,
	)
	metrics.RollbacksIssued.Inc()
	return OutcomeFailedRolledBack
}

// undoRollout reverts the deployment to the given revision by restoring
// the pod template recorded by that revision's ReplicaSet, which is how
// `kubectl rollout undo --to-revision` works.
func (o *Orchestrator) undoRollout(ctx context.Context, target DeploymentTarget, revision Revision) error {
	client := o.clientset.AppsV1().Deployments(target.Namespace)

	dep, err := client.Get(ctx, target.App, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to read deployment for rollback: %w", err)
	}

	rs, err := o.replicaSetForRevision(ctx, dep, revision)
	if err != nil {
		return err
	}

	// The hash label is owned by the deployment controller and must
	// not travel back into the deployment's template.
	template := rs.Spec.Template.DeepCopy()
	delete(template.Labels, appsv1.DefaultDeploymentUniqueLabelKey)
	dep.Spec.Template = *template

	if _, err := client.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("rollback to revision %s rejected: %w", revision, err)
	}
	return nil
}

// replicaSetForRevision finds the ReplicaSet owned by the deployment
// whose revision annotation matches the requested revision.
func (o *Orchestrator) replicaSetForRevision(ctx context.Context, dep *appsv1.Deployment, revision Revision) (*appsv1.ReplicaSet, error) {
	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("deployment has an unusable label selector: %w", err)
	}

	rsList, err := o.clientset.AppsV1().ReplicaSets(dep.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list replica sets for rollback: %w", err)
	}

	for i := range rsList.Items {
		rs := &rsList.Items[i]
		if !metav1.IsControlledBy(rs, dep) {
			continue
		}
		if rs.Annotations[revisionAnnotation] == string(revision) {
			return rs, nil
		}
	}

	return nil, fmt.Errorf("no replica set records revision %s for deployment %s", revision, dep.Name)
}
