package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexar/hal/internal/admission"
	"github.com/nexar/hal/internal/config"
	"github.com/nexar/hal/internal/dispatcher"
	"github.com/nexar/hal/internal/events"
	"github.com/nexar/hal/internal/hashing"
	"github.com/nexar/hal/internal/httpapi"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	_ "github.com/nexar/hal/internal/provider/gcpbatch" // Register gcp-batch provider
	_ "github.com/nexar/hal/internal/provider/local"    // Register local provider
	"github.com/nexar/hal/internal/scheduler"
	"github.com/nexar/hal/internal/statustracker"
	"github.com/nexar/hal/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HAL server",
	Long:  `Start the HAL HTTP API, the batch monitor and time scheduler loops, and the status reconciler.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting HAL...")

	ctx := context.Background()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("Loaded configuration: store=%s, providers=%d", cfg.StoreURL, len(cfg.Providers))

	st, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create job store: %w", err)
	}
	defer closeStore()
	log.Printf("JobStore backend: %s (persistence=%s)", cfg.StoreURL, st.Persistence())

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	offloader, closeOffloader, err := newOffloader(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create result offloader: %w", err)
	}
	defer closeOffloader()

	providerCfgs := make(map[string]provider.Config, len(cfg.Providers))
	for name, creds := range cfg.Providers {
		opts := make(map[string]string, len(creds.Options)+1)
		for k, v := range creds.Options {
			opts[k] = v
		}
		if _, ok := opts["queue_threshold"]; !ok && cfg.DeviceQueueThreshold > 0 {
			opts["queue_threshold"] = strconv.Itoa(cfg.DeviceQueueThreshold)
		}
		providerCfgs[name] = provider.Config{
			Name:            name,
			ProjectID:       creds.ProjectID,
			Region:          creds.Region,
			ProviderOptions: opts,
		}
	}
	if err := provider.Init(ctx, providerCfgs); err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	log.Printf("Initialized providers: %v", provider.RegisteredNames())

	queues := scheduler.NewQueues()
	disp := dispatcher.New(st, publisher)
	admitter := admission.New(st, publisher, queues, disp, cfg.BackpressureHighWater)

	workerID := os.Getenv("HAL_WORKER_ID")
	if workerID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			workerID = "hal-unknown"
		} else {
			workerID = hostname
		}
	}
	leaseTTL := getEnvAsDurationOrDefault("HAL_LEASE_TTL", 30*time.Second)
	pollInterval := getEnvAsDurationOrDefault("HAL_POLL_INTERVAL", 5*time.Second)
	reconcileEvery := getEnvAsDurationOrDefault("HAL_RECONCILE_INTERVAL", 5*time.Second)
	tracker := statustracker.New(st, publisher, offloader, cfg.ResultInlineMaxBytes, workerID, leaseTTL, pollInterval, reconcileEvery)
	log.Printf("HAL identity: %s (lease_ttl=%s, reconcile_interval=%s)", workerID, leaseTTL, reconcileEvery)
	if cfg.ShardCount > 1 {
		ring, err := hashing.New(cfg.ShardCount)
		if err != nil {
			return fmt.Errorf("failed to build shard ring: %w", err)
		}
		tracker.WithSharding(ring, cfg.ShardIndex)
		log.Printf("Reconciler sharding enabled: shard %d of %d", cfg.ShardIndex, cfg.ShardCount)
	}

	sched := scheduler.New(scheduler.Config{
		BatchTick:        cfg.BatchTick,
		SchedTick:        cfg.SchedTick,
		TimeStrategyWait: cfg.TimeStrategyWait,
		CostStrategyWait: cfg.CostStrategyWait,
		MaxBatchSize:     cfg.MaxBatchSize,
	}, st, queues, disp, admitter, publisher)

	if err := rehydrateQueues(ctx, st, queues); err != nil {
		log.Printf("Warning: failed to rehydrate pending queues on startup: %v", err)
	}

	api := httpapi.New(admitter, tracker, st, queues)

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    addr,
		Handler: api.Routes(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Run(sigCtx)
	go tracker.StartReconciler(sigCtx)

	go func() {
		log.Printf("HAL listening on %s", addr)
		log.Println("Available endpoints: /health /submit /submit_code /status /result /cancel /list_scheduled /providers /devices")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	log.Println("HAL stopped")
	return nil
}

// newStore constructs the configured JobStore backend and returns a close
// func safe to defer unconditionally.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreURL {
	case "spanner":
		client, err := store.NewClient(ctx, cfg.Spanner.ProjectID, cfg.Spanner.Instance, cfg.Spanner.Database)
		if err != nil {
			return nil, func() {}, err
		}
		log.Printf("Connected to Spanner: %s/%s/%s", cfg.Spanner.ProjectID, cfg.Spanner.Instance, cfg.Spanner.Database)
		return store.NewSpannerStore(client), func() { client.Close() }, nil
	default:
		log.Println("Warning: using in-memory JobStore, submissions will not survive a restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	if cfg.EventTopic == "" || cfg.PubSubProjectID == "" {
		log.Println("No event topic configured, lifecycle events will only be logged")
		return events.NoopPublisher{}, nil
	}
	pub, err := events.NewPubSubPublisher(ctx, cfg.PubSubProjectID, cfg.EventTopic)
	if err != nil {
		return nil, err
	}
	log.Printf("Publishing lifecycle events to pubsub topic %s", cfg.EventTopic)
	return pub, nil
}

func newOffloader(ctx context.Context, cfg *config.Config) (store.ResultOffloader, func(), error) {
	if cfg.ResultBucket == "" {
		return store.InlineOffloader{}, func() {}, nil
	}
	gcs, err := store.NewGCSOffloader(ctx, cfg.ResultBucket)
	if err != nil {
		return nil, func() {}, err
	}
	log.Printf("Offloading oversized results to gs://%s", cfg.ResultBucket)
	return gcs, func() { gcs.Close() }, nil
}

// rehydrateQueues rebuilds the in-memory pending-batch index from the
// durable store on startup, mirroring ResumeActiveJobPollers's resumption
// of in-flight work after a restart. QUEUED_UNAVAILABLE submissions are
// restored alongside QUEUED ones: scheduler.Queues is purely in-memory, so a
// job left in QUEUED_UNAVAILABLE at restart would otherwise never be found
// by promoteIfAvailable again, even after its device recovers.
func rehydrateQueues(ctx context.Context, st store.Store, queues *scheduler.Queues) error {
	all, err := st.LoadAll(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, sub := range all {
		if sub.Status != job.StatusQueued && sub.Status != job.StatusQueuedUnavailable {
			continue
		}
		key := job.BatchKey{Provider: sub.Request.ProviderName, Device: sub.Request.DeviceName, Shots: sub.Request.Shots}
		queues.Enqueue(key, sub.ID)
		restored++
	}
	if restored > 0 {
		log.Printf("Restored %d queued/queued-unavailable job(s) into pending batch queues", restored)
	}
	return nil
}

func getEnvAsDurationOrDefault(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
