package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/github/deploy-orchestrator/pkg/manifest"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// apply submits every object in the manifest to the control plane as a
// create-or-update, so applying the same manifest twice converges on
// the same end state. Any rejection fails the whole gate; partial state
// left behind by earlier objects is the rollback path's problem, not
// this gate's. Returns the container image of the applied deployment
// for record keeping.
func (o *Orchestrator) apply(ctx context.Context, run DeploymentRun) (string, error) {
	objects, err := manifest.Load(run.ManifestPath, run.Target.Namespace)
	if err != nil {
		return "", err
	}

	var img string
	for _, obj := range objects {
		switch obj := obj.(type) {
		case *appsv1.Deployment:
			if err := o.applyDeployment(ctx, obj); err != nil {
				return "", err
			}
			if len(obj.Spec.Template.Spec.Containers) > 0 {
				img = obj.Spec.Template.Spec.Containers[0].Image
			}
		case *corev1.Service:
			if err := o.applyService(ctx, obj); err != nil {
				return "", err
			}
		case *corev1.ConfigMap:
			if err := o.applyConfigMap(ctx, obj); err != nil {
				return "", err
			}
		case *corev1.Secret:
			if err := o.applySecret(ctx, obj); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("manifest contains unsupported object type %T", obj)
		}
	}

	return img, nil
}

func (o *Orchestrator) applyDeployment(ctx context.Context, dep *appsv1.Deployment) error {
	client := o.clientset.AppsV1().Deployments(dep.Namespace)

	existing, err := client.Get(ctx, dep.Name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		if _, err := client.Create(ctx, dep, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create deployment %s: %w", dep.Name, err)
		}
		slog.Info("created deployment",
			"deployment", dep.Name,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up deployment %s: %w", dep.Name, err)
	}

	dep.ResourceVersion = existing.ResourceVersion
	if _, err := client.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update deployment %s: %w", dep.Name, err)
	}
	slog.Info("updated deployment",
		"deployment", dep.Name,
	)
	return nil
}

func (o *Orchestrator) applyService(ctx context.Context, svc *corev1.Service) error {
	client := o.clientset.CoreV1().Services(svc.Namespace)

	existing, err := client.Get(ctx, svc.Name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		if _, err := client.Create(ctx, svc, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create service %s: %w", svc.Name, err)
		}
		slog.Info("created service",
			"service", svc.Name,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up service %s: %w", svc.Name, err)
	}

	// The API server rejects updates that drop an allocated cluster IP.
	svc.ResourceVersion = existing.ResourceVersion
	svc.Spec.ClusterIP = existing.Spec.ClusterIP
	if _, err := client.Update(ctx, svc, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update service %s: %w", svc.Name, err)
	}
	slog.Info("updated service",
		"service", svc.Name,
	)
	return nil
}

func (o *Orchestrator) applyConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	client := o.clientset.CoreV1().ConfigMaps(cm.Namespace)

	existing, err := client.Get(ctx, cm.Name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		if _, err := client.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create configmap %s: %w", cm.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up configmap %s: %w", cm.Name, err)
	}

	cm.ResourceVersion = existing.ResourceVersion
	if _, err := client.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap %s: %w", cm.Name, err)
	}
	return nil
}

func (o *Orchestrator) applySecret(ctx context.Context, sec *corev1.Secret) error {
	client := o.clientset.CoreV1().Secrets(sec.Namespace)

	existing, err := client.Get(ctx, sec.Name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		if _, err := client.Create(ctx, sec, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create secret %s: %w", sec.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up secret %s: %w", sec.Name, err)
	}

	sec.ResourceVersion = existing.ResourceVersion
	if _, err := client.Update(ctx, sec, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update secret %s: %w", sec.Name, err)
	}
	return nil
}
