package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"
)

func TestRollbackWithoutTarget(t *testing.T) {
	o, client := newTestOrchestrator(t, deploymentFixture())

	run := DeploymentRun{
		Target: DeploymentTarget{App: "web", Namespace: "default"},
	}

	outcome := o.rollback(context.Background(), run)
	if outcome != OutcomeFailedNoRollback {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeFailedNoRollback)
	}

	// No cluster mutation of any kind is attempted.
	if got := len(client.Actions()); got != 0 {
		t.Errorf("cluster actions = %d, want 0", got)
	}
}

func TestRollbackOutcomes(t *testing.T) {
	run := DeploymentRun{
		Target:     DeploymentTarget{App: "web", Namespace: "default"},
		RollbackTo: "2",
	}

	t.Run("request accepted", func(t *testing.T) {
		o, _ := newTestOrchestrator(t,
			deploymentFixture(),
			replicaSetFixture("web-old", "2", "nginx:1.20"),
		)
		if outcome := o.rollback(context.Background(), run); outcome != OutcomeFailedRolledBack {
			t.Errorf("outcome = %q, want %q", outcome, OutcomeFailedRolledBack)
		}
	})

	t.Run("request rejected", func(t *testing.T) {
		o, client := newTestOrchestrator(t,
			deploymentFixture(),
			replicaSetFixture("web-old", "2", "nginx:1.20"),
		)
		client.PrependReactor("update", "deployments",
			func(action k8stesting.Action) (bool, runtime.Object, error) {
				return true, nil, errors.New("conflict")
			})

		if outcome := o.rollback(context.Background(), run); outcome != OutcomeFailedRollbackFailed {
			t.Errorf("outcome = %q, want %q", outcome, OutcomeFailedRollbackFailed)
		}
	})
}

func TestUndoRollout(t *testing.T) {
	target := DeploymentTarget{App: "web", Namespace: "default"}

	t.Run("restores the revision's template", func(t *testing.T) {
		o, client := newTestOrchestrator(t,
			deploymentFixture(),
			replicaSetFixture("web-old", "2", "nginx:1.20"),
		)

		if err := o.undoRollout(context.Background(), target, "2"); err != nil {
			t.Fatalf("undoRollout() unexpected error: %v", err)
		}

		dep, err := client.AppsV1().Deployments("default").Get(context.Background(), "web", metav1.GetOptions{})
		if err != nil {
			t.Fatalf("failed to read deployment: %v", err)
		}

		if img := dep.Spec.Template.Spec.Containers[0].Image; img != "nginx:1.20" {
			t.Errorf("restored image = %q, want %q", img, "nginx:1.20")
		}
		if _, ok := dep.Spec.Template.Labels[appsv1.DefaultDeploymentUniqueLabelKey]; ok {
			t.Error("restored template still carries the pod-template-hash label")
		}
	})

	t.Run("unknown revision", func(t *testing.T) {
		o, _ := newTestOrchestrator(t,
			deploymentFixture(),
			replicaSetFixture("web-old", "2", "nginx:1.20"),
		)

		err := o.undoRollout(context.Background(), target, "7")
		if err == nil {
			t.Fatal("undoRollout() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "no replica set records revision") {
			t.Errorf("error = %q, want unknown revision failure", err.Error())
		}
	})

	t.Run("deployment missing", func(t *testing.T) {
		o, _ := newTestOrchestrator(t)
		if err := o.undoRollout(context.Background(), target, "2"); err == nil {
			t.Fatal("undoRollout() expected error, got nil")
		}
	})
}
