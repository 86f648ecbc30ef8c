package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// awaitRollout blocks until the control plane reports the new revision
// fully replacing the old one, the configured deadline passes, or the
// deployment reports it cannot make progress. This is the only gate
// expected to block for a non-trivial duration. Transient status read
// failures are retried until the deadline; only convergence returns nil.
func (o *Orchestrator) awaitRollout(ctx context.Context, target DeploymentTarget) error {
	err := wait.PollUntilContextTimeout(ctx, o.cfg.PollInterval, o.cfg.RolloutTimeout, true,
		func(ctx context.Context) (bool, error) {
			dep, err := o.clientset.AppsV1().Deployments(target.Namespace).Get(ctx, target.App, metav1.GetOptions{})
			if err != nil {
				slog.Warn("rollout status read failed, will retry",
					"app", target.App,
					"error", err,
				)
				return false, nil
			}

			// The deployment controller enforces its own progress
			// deadline; once it gives up there is no point waiting
			// out our timeout.
			if cond := progressingCondition(dep); cond != nil &&
				cond.Status == corev1.ConditionFalse &&
				cond.Reason == "ProgressDeadlineExceeded" {
				return false, fmt.Errorf("deployment %s exceeded its progress deadline: %s", target.App, cond.Message)
			}

			return rolloutComplete(dep), nil
		})
	if err != nil {
		return fmt.Errorf("rollout did not converge within %s: %w", o.cfg.RolloutTimeout, err)
	}

	slog.Info("rollout complete",
		"app", target.App,
	)
	return nil
}

// rolloutComplete mirrors the convergence rules of `kubectl rollout
// status`: the controller has observed the latest generation, every
// replica runs the new revision, no surplus old replicas remain, and
// all updated replicas are available.
func rolloutComplete(dep *appsv1.Deployment) bool {
	if dep.Generation > dep.Status.ObservedGeneration {
		return false
	}

	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}

	return dep.Status.UpdatedReplicas == desired &&
		dep.Status.Replicas == desired &&
		dep.Status.AvailableReplicas == desired
}

func progressingCondition(dep *appsv1.Deployment) *appsv1.DeploymentCondition {
	for i := range dep.Status.Conditions {
		if dep.Status.Conditions[i].Type == appsv1.DeploymentProgressing {
			return &dep.Status.Conditions[i]
		}
	}
	return nil
}
