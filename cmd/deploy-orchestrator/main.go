package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/github/deploy-orchestrator/internal/orchestrator"
	"github.com/github/deploy-orchestrator/pkg/deployrecord"
	"github.com/github/deploy-orchestrator/pkg/image"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	var (
		app            string
		manifestPath   string
		namespace      string
		rolloutTimeout time.Duration
		healthTimeout  time.Duration
		kubeconfig     string
		metricsPort    string
	)

	flag.StringVar(&app, "app", "", "application name (required)")
	flag.StringVar(&manifestPath, "manifest", "", "path to the Kubernetes manifest (required)")
	flag.StringVar(&namespace, "namespace", orchestrator.DefaultNamespace, "Kubernetes namespace")
	flag.DurationVar(&rolloutTimeout, "rollout-timeout", orchestrator.DefaultRolloutTimeout, "how long to wait for the rollout to converge")
	flag.DurationVar(&healthTimeout, "health-timeout", orchestrator.DefaultHealthTimeout, "how long the post-rollout health checks may take")
	flag.StringVar(&kubeconfig, "kubeconfig", "", "path to kubeconfig file (uses in-cluster config if not set)")
	flag.StringVar(&metricsPort, "metrics-port", "", "port to serve Prometheus metrics on during the run (disabled if empty)")
	flag.Parse()

	// init logging
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC)
	opts := slog.HandlerOptions{Level: slog.LevelInfo}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &opts)))

	cfg := orchestrator.Config{
		App:            app,
		Namespace:      namespace,
		ManifestPath:   manifestPath,
		RolloutTimeout: rolloutTimeout,
		HealthTimeout:  healthTimeout,
	}

	k8sCfg, err := createK8sConfig(kubeconfig)
	if err != nil {
		slog.Error("Failed to create Kubernetes config",
			"error", err)
		os.Exit(1)
	}

	clientset, err := kubernetes.NewForConfig(k8sCfg)
	if err != nil {
		slog.Error("Error creating Kubernetes client",
			"error", err)
		os.Exit(1)
	}

	var promSrv *http.Server
	if metricsPort != "" {
		promSrv = startMetricsServer(metricsPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	orch, err := orchestrator.New(clientset, cfg)
	if err != nil {
		slog.Error("Failed to create orchestrator",
			"error", err)
		os.Exit(1)
	}

	result, err := orch.Deploy(ctx)
	if err != nil {
		slog.Error("Deployment failed",
			"app", app,
			"outcome", result.Outcome,
			"error", err)
	}

	// Reporting is best effort and never changes the exit status.
	if org := os.Getenv("GITHUB_ORG"); org != "" {
		postRecord(ctx, org, cfg, result)
	}

	if promSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := promSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown metrics server gracefully",
				"error", err)
		}
	}

	if !result.Outcome.Success() {
		os.Exit(1)
	}
}

// startMetricsServer serves /metrics for the duration of the run, so a
// scraper colocated with CI can pick up per-gate timings.
func startMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           mux,
	}

	go func() {
		slog.Info("starting Prometheus metrics server",
			"url", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start metrics server",
				"error", err)
		}
	}()

	return srv
}

// postRecord reports the run's terminal state to the artifact metadata
// API, configured entirely through the environment.
func postRecord(ctx context.Context, org string, cfg orchestrator.Config, result orchestrator.Result) {
	clientOpts := []deployrecord.ClientOption{}
	if tok := os.Getenv("API_TOKEN"); tok != "" {
		clientOpts = append(clientOpts, deployrecord.WithAPIToken(tok))
	}
	if os.Getenv("GH_APP_ID") != "" &&
		os.Getenv("GH_INSTALL_ID") != "" &&
		os.Getenv("GH_APP_PRIV_KEY") != "" {
		clientOpts = append(clientOpts, deployrecord.WithGHApp(
			os.Getenv("GH_APP_ID"),
			os.Getenv("GH_INSTALL_ID"),
			os.Getenv("GH_APP_PRIV_KEY")))
	}

	client, err := deployrecord.NewClient(
		getEnvOrDefault("BASE_URL", "api.github.com"),
		org,
		clientOpts...,
	)
	if err != nil {
		slog.Error("Failed to create deploy record client",
			"error", err)
		return
	}

	status := deployrecord.StatusFailed
	switch result.Outcome {
	case orchestrator.OutcomeSuccess:
		status = deployrecord.StatusDeployed
	case orchestrator.OutcomeFailedRolledBack:
		status = deployrecord.StatusRolledBack
	}

	ref := image.ParseRef(result.Image)
	record := &deployrecord.Record{
		Name:                ref.Name,
		Digest:              result.Digest,
		Version:             ref.Tag,
		LogicalEnvironment:  os.Getenv("LOGICAL_ENVIRONMENT"),
		PhysicalEnvironment: os.Getenv("PHYSICAL_ENVIRONMENT"),
		Cluster:             os.Getenv("CLUSTER"),
		Status:              status,
		DeploymentName:      cfg.App,
		Namespace:           cfg.Namespace,
		Revision:            string(result.PreviousRevision),
	}

	if err := client.Post(ctx, record); err != nil {
		slog.Error("Failed to post deploy record",
			"status", record.Status,
			"error", err)
		return
	}

	slog.Info("Posted deploy record",
		"name", record.Name,
		"status", record.Status)
}

func createK8sConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}

	if os.Getenv("KUBECONFIG") != "" {
		return clientcmd.BuildConfigFromFlags("", os.Getenv("KUBECONFIG"))
	}

	// Try in-cluster config first
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	// Fall back to default kubeconfig location
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return clientcmd.BuildConfigFromFlags("", homeDir+"/.kube/config")
}
