package orchestrator

import (
	"context"
	"log/slog"
	"strconv"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// revisionAnnotation is where the deployment controller records the
// revision that produced each ReplicaSet.
const revisionAnnotation = "deployment.kubernetes.io/revision"

// currentRevision returns the newest revision recorded for the target
// deployment, or "no revision" when the deployment does not exist or
// its history cannot be read. A missing revision is a legitimate state
// (first deployment), so every query failure is absorbed here rather
// than failing the run; it just means a later failure has nothing to
// revert to.
func (o *Orchestrator) currentRevision(ctx context.Context, target DeploymentTarget) Revision {
	dep, err := o.clientset.AppsV1().Deployments(target.Namespace).Get(ctx, target.App, metav1.GetOptions{})
	if err != nil {
		if !k8serrors.IsNotFound(err) {
			slog.Warn("could not read deployment for revision history",
				"app", target.App,
				"namespace", target.Namespace,
				"error", err,
			)
		}
		return ""
	}

	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		slog.Warn("deployment has an unusable label selector",
			"app", target.App,
			"error", err,
		)
		return ""
	}

	rsList, err := o.clientset.AppsV1().ReplicaSets(target.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		slog.Warn("could not list replica sets for revision history",
			"app", target.App,
			"error", err,
		)
		return ""
	}

	// List order is not guaranteed, so "current" is the numerically
	// highest revision annotation rather than the last list entry.
	// The deployment controller documents the annotation as a
	// monotonically increasing integer, which makes this ordering
	// explicit instead of positional.
	var (
		current Revision
		best    int64 = -1
	)
	for i := range rsList.Items {
		rs := &rsList.Items[i]
		if !metav1.IsControlledBy(rs, dep) {
			continue
		}

		raw, ok := rs.Annotations[revisionAnnotation]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("skipping replica set with malformed revision annotation",
				"replicaset", rs.Name,
				"revision", raw,
			)
			continue
		}

		if n > best {
			best = n
			current = Revision(raw)
		}
	}

	return current
}
