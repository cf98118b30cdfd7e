// Package config loads HAL's tunables from the environment, following the
// teacher's 12-factor LoadFromEnv/Validate/getEnvOrDefault idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is HAL's complete runtime configuration: the tick intervals,
// batching weights, and thresholds enumerated in spec §6, plus store/event
// backend selection and per-provider opaque credentials.
type Config struct {
	ServerPort string

	// BatchTick is how often the batch monitor loop wakes (spec default ~2s
	// in the original system; HAL's spec.md suggests tuning independently).
	BatchTick time.Duration

	// SchedTick is how often the time scheduler loop wakes.
	SchedTick time.Duration

	// TimeStrategyWait and CostStrategyWait are the per-strategy wait caps
	// a batch may sit open before it is forced to dispatch regardless of
	// size.
	TimeStrategyWait time.Duration
	CostStrategyWait time.Duration

	// MaxBatchSize is the largest number of tasks combined into one
	// execute_batch call.
	MaxBatchSize int

	// DeviceQueueThreshold is the default pending-job ceiling a device is
	// considered available under, when the provider does not report its
	// own per-device threshold.
	DeviceQueueThreshold int

	// BackpressureHighWater bounds the depth of each batch queue: a STANDARD
	// submission arriving at a queue that already holds this many jobs is
	// rejected with a Backpressure error. HIGH submissions are not rejected.
	BackpressureHighWater int

	// StoreURL selects the JobStore backend. Empty or "memory" selects the
	// degraded in-memory fallback; "spanner" selects the durable backend
	// below.
	StoreURL string

	Spanner SpannerConfig

	// EventTopic names the external event bus topic lifecycle events are
	// published to. Empty disables durable publishing (logging no-op).
	EventTopic string
	PubSubProjectID string

	// ResultInlineMaxBytes bounds the size of a result payload stored
	// inline in the JobStore record; larger payloads are offloaded to
	// ResultBucket and the submission carries a pointer instead.
	ResultInlineMaxBytes int
	ResultBucket         string

	// Providers maps a provider name to its opaque credential bag (spec
	// §6: "per-provider credentials (opaque to HAL)").
	Providers map[string]ProviderCreds

	// ShardCount and ShardIndex partition reconciliation work across a
	// horizontally-scaled HAL fleet via consistent hashing (spec §5:
	// "implementations may shard by job_id hash"). ShardCount=1 (the
	// default) disables sharding: every instance reconciles every job.
	ShardCount int
	ShardIndex int
}

// SpannerConfig holds connection parameters for the durable JobStore.
type SpannerConfig struct {
	ProjectID string
	Instance  string
	Database  string
}

// ProviderCreds is opaque from HAL's point of view; it is handed unexamined
// to the provider constructor registered under the given name.
type ProviderCreds struct {
	ProjectID string
	Region    string
	Options   map[string]string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ServerPort:            getEnvOrDefault("HAL_PORT", "8080"),
		BatchTick:             getEnvAsDuration("HAL_BATCH_TICK", 2*time.Second),
		SchedTick:             getEnvAsDuration("HAL_SCHED_TICK", 1*time.Second),
		TimeStrategyWait:      getEnvAsDuration("HAL_TIME_STRATEGY_WAIT", 1*time.Second),
		CostStrategyWait:      getEnvAsDuration("HAL_COST_STRATEGY_WAIT", 10*time.Second),
		MaxBatchSize:          getEnvAsInt("HAL_MAX_BATCH_SIZE", 10),
		DeviceQueueThreshold:  getEnvAsInt("HAL_DEVICE_QUEUE_THRESHOLD", 5),
		BackpressureHighWater: getEnvAsInt("HAL_BACKPRESSURE_HIGH_WATER", 10000),
		StoreURL:              getEnvOrDefault("HAL_STORE_URL", "memory"),
		Spanner: SpannerConfig{
			ProjectID: os.Getenv("HAL_SPANNER_PROJECT_ID"),
			Instance:  os.Getenv("HAL_SPANNER_INSTANCE"),
			Database:  os.Getenv("HAL_SPANNER_DATABASE"),
		},
		EventTopic:            os.Getenv("HAL_EVENT_TOPIC"),
		PubSubProjectID:       os.Getenv("HAL_PUBSUB_PROJECT_ID"),
		ResultInlineMaxBytes:  getEnvAsInt("HAL_RESULT_INLINE_MAX_BYTES", 32*1024),
		ResultBucket:          os.Getenv("HAL_RESULT_BUCKET"),
		Providers:             map[string]ProviderCreds{},
		ShardCount:            getEnvAsInt("HAL_SHARD_COUNT", 1),
		ShardIndex:            getEnvAsInt("HAL_SHARD_INDEX", 0),
	}

	if gcpProject := os.Getenv("HAL_GCP_BATCH_PROJECT_ID"); gcpProject != "" {
		cfg.Providers["gcp-batch"] = ProviderCreds{
			ProjectID: gcpProject,
			Region:    os.Getenv("HAL_GCP_BATCH_REGION"),
			Options:   map[string]string{},
		}
	}
	cfg.Providers["local"] = ProviderCreds{Options: map[string]string{}}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks tick intervals and store selection are sane.
func (c *Config) Validate() error {
	if c.BatchTick <= 0 {
		return fmt.Errorf("HAL_BATCH_TICK must be positive")
	}
	if c.SchedTick <= 0 {
		return fmt.Errorf("HAL_SCHED_TICK must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("HAL_MAX_BATCH_SIZE must be positive")
	}
	if c.ShardCount <= 0 {
		return fmt.Errorf("HAL_SHARD_COUNT must be positive")
	}
	if c.ShardIndex < 0 || c.ShardIndex >= c.ShardCount {
		return fmt.Errorf("HAL_SHARD_INDEX must be in [0, HAL_SHARD_COUNT)")
	}
	switch c.StoreURL {
	case "memory":
		// always valid
	case "spanner":
		if c.Spanner.ProjectID == "" || c.Spanner.Instance == "" || c.Spanner.Database == "" {
			return fmt.Errorf("HAL_SPANNER_PROJECT_ID, HAL_SPANNER_INSTANCE and HAL_SPANNER_DATABASE are required when HAL_STORE_URL=spanner")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.StoreURL)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetMigrationGuide returns a migration guide from the original system's
// hardcoded single-provider deployment to HAL's environment-variable
// configuration.
func GetMigrationGuide() string {
	return `
Migration Guide: Hardcoded Config to Environment Variables
============================================================

Old (hardcoded provider selection in the original system):
  provider        = "local"
  gcpProjectId    = "labs-169405"
  gcpRegion       = "asia-northeast1"
  serverPort      = "8080"

New (environment variables):
  HAL_PORT=8080
  HAL_STORE_URL=memory
  HAL_GCP_BATCH_PROJECT_ID=labs-169405
  HAL_GCP_BATCH_REGION=asia-northeast1

Example for a durable Spanner-backed JobStore:
  HAL_STORE_URL=spanner
  HAL_SPANNER_PROJECT_ID=labs-169405
  HAL_SPANNER_INSTANCE=alphaus-dev
  HAL_SPANNER_DATABASE=main

Example for a sharded reconciler fleet:
  HAL_SHARD_COUNT=4
  HAL_SHARD_INDEX=0    # 0..3, one per instance

Example for durable lifecycle events and oversized-result offload:
  HAL_EVENT_TOPIC=hal-lifecycle-events
  HAL_PUBSUB_PROJECT_ID=labs-169405
  HAL_RESULT_BUCKET=hal-results
`
}
