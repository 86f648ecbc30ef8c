package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/github/deploy-orchestrator/pkg/image"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// validateHealth independently confirms the new revision is actually
// serving: every pod selected by the app label must be Running, and the
// service must have at least one registered endpoint. Both checks are
// attempted even when the first one fails, so the log always carries
// both results; passing requires both. Returns the resolved image
// digest of a running pod for record keeping.
func (o *Orchestrator) validateHealth(ctx context.Context, target DeploymentTarget) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
	defer cancel()

	digest, podsHealthy := o.checkPodHealth(ctx, target)
	endpointsReady := o.checkServiceEndpoints(ctx, target)

	if !podsHealthy || !endpointsReady {
		return "", fmt.Errorf("health validation failed (pods healthy: %t, endpoints registered: %t)",
			podsHealthy, endpointsReady)
	}

	return digest, nil
}

// checkPodHealth requires a non-empty set of pods selected by the app
// label, all in phase Running. An empty result set is a failure, not
// vacuously healthy, and so is any query error.
func (o *Orchestrator) checkPodHealth(ctx context.Context, target DeploymentTarget) (string, bool) {
	pods, err := o.clientset.CoreV1().Pods(target.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + target.App,
	})
	if err != nil {
		slog.Error("failed to list pods for health check",
			"app", target.App,
			"error", err,
		)
		return "", false
	}
	if len(pods.Items) == 0 {
		slog.Error("no pods found for app",
			"app", target.App,
			"namespace", target.Namespace,
		)
		return "", false
	}

	var digest string
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase != corev1.PodRunning {
			slog.Error("pod is not running",
				"pod", pod.Name,
				"phase", pod.Status.Phase,
			)
			return "", false
		}
		if digest == "" && len(pod.Status.ContainerStatuses) > 0 {
			digest = image.DigestFromImageID(pod.Status.ContainerStatuses[0].ImageID)
		}
	}

	slog.Info("all pods running",
		"count", len(pods.Items),
	)
	return digest, true
}

// checkServiceEndpoints requires the service backing the app to have at
// least one registered address. A rollout can report complete before
// any endpoint has registered; this check exists to catch exactly that
// race.
func (o *Orchestrator) checkServiceEndpoints(ctx context.Context, target DeploymentTarget) bool {
	eps, err := o.clientset.CoreV1().Endpoints(target.Namespace).Get(ctx, target.App, metav1.GetOptions{})
	if err != nil {
		slog.Error("failed to read service endpoints",
			"service", target.App,
			"error", err,
		)
		return false
	}

	addresses := 0
	for _, subset := range eps.Subsets {
		addresses += len(subset.Addresses)
	}
	if addresses == 0 {
		slog.Error("service has no endpoints",
			"service", target.App,
		)
		return false
	}

	slog.Info("service endpoints registered",
		"count", addresses,
	)
	return true
}
