// Package config loads the server's environment-variable configuration
// into a single typed struct, read once at Bootstrap time. No other
// package should call os.Getenv directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-configurable setting enumerated in
// the specification's external interfaces section.
type Config struct {
	Port string

	DatabaseURL string
	PGPoolMax   int
	DBSSLMode   string

	BlobEndpoint        string
	BlobRegion          string
	BlobBucket          string
	BlobAccessKeyID     string
	BlobSecretAccessKey string
	BlobEnabled         bool

	AuthJWKSURL  string
	AuthIssuer   string
	AuthAudience string

	QueueURL string

	SandboxSocketPath string

	SnapshotEveryNUpdates      int
	SnapshotEveryMS            time.Duration
	PruneUpdatesBeforeSnapshot bool
	SnapshotRetention          int

	HubIdleTimeout time.Duration

	ExecTimeout         time.Duration
	ExecCodeMaxBytes    int
	ExecOutputMaxBytes  int
	ExecCPUCores        float64
	ExecMemoryBytes     int64
	ExecTmpfsBytes      int64
	ExecMaxConcurrency  int
	ExecRateLimitPerMin int
	WorkerIdle          time.Duration

	FrontendOrigin string

	LogJSON bool
}

// Load reads the configuration from the process environment, applying
// the defaults listed in the specification's environment table.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBSSLMode:   getEnv("DB_SSL_MODE", "disable"),

		BlobEndpoint:        os.Getenv("BLOB_ENDPOINT"),
		BlobRegion:          os.Getenv("BLOB_REGION"),
		BlobBucket:          os.Getenv("BLOB_BUCKET"),
		BlobAccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
		BlobSecretAccessKey: os.Getenv("BLOB_SECRET_ACCESS_KEY"),

		AuthJWKSURL:  os.Getenv("AUTH_JWKS_URL"),
		AuthIssuer:   os.Getenv("AUTH_ISSUER"),
		AuthAudience: os.Getenv("AUTH_AUDIENCE"),

		QueueURL: os.Getenv("QUEUE_URL"),

		SandboxSocketPath: getEnv("SANDBOX_SOCKET_PATH", "/run/containerd/containerd.sock"),

		FrontendOrigin: os.Getenv("FRONTEND_ORIGIN"),
	}

	cfg.BlobEnabled = cfg.BlobEndpoint != "" && cfg.BlobBucket != "" &&
		cfg.BlobAccessKeyID != "" && cfg.BlobSecretAccessKey != ""

	var err error

	if cfg.PGPoolMax, err = getEnvInt("PG_POOL_MAX", 10); err != nil {
		return Config{}, err
	}

	if cfg.SnapshotEveryNUpdates, err = getEnvInt("SNAPSHOT_EVERY_N_UPDATES", 50); err != nil {
		return Config{}, err
	}

	snapshotMS, err := getEnvInt("SNAPSHOT_EVERY_MS", 30000)
	if err != nil {
		return Config{}, err
	}

	cfg.SnapshotEveryMS = time.Duration(snapshotMS) * time.Millisecond

	if cfg.PruneUpdatesBeforeSnapshot, err = getEnvBool("PRUNE_UPDATES_BEFORE_SNAPSHOT", false); err != nil {
		return Config{}, err
	}

	if cfg.SnapshotRetention, err = getEnvInt("SNAPSHOT_RETENTION", 3); err != nil {
		return Config{}, err
	}

	hubIdleMS, err := getEnvInt("HUB_IDLE_MS", 600000)
	if err != nil {
		return Config{}, err
	}

	cfg.HubIdleTimeout = time.Duration(hubIdleMS) * time.Millisecond

	execTimeoutMS, err := getEnvInt("EXEC_TIMEOUT_MS", 10000)
	if err != nil {
		return Config{}, err
	}

	cfg.ExecTimeout = time.Duration(execTimeoutMS) * time.Millisecond

	if cfg.ExecCodeMaxBytes, err = getEnvInt("EXEC_CODE_MAX_BYTES", 100000); err != nil {
		return Config{}, err
	}

	if cfg.ExecOutputMaxBytes, err = getEnvInt("EXEC_OUTPUT_MAX_BYTES", 1048576); err != nil {
		return Config{}, err
	}

	if cfg.ExecCPUCores, err = getEnvFloat("EXEC_CPU_CORES", 1); err != nil {
		return Config{}, err
	}

	execMemoryBytes, err := getEnvInt("EXEC_MEMORY_BYTES", 256*1024*1024)
	if err != nil {
		return Config{}, err
	}

	cfg.ExecMemoryBytes = int64(execMemoryBytes)

	execTmpfsBytes, err := getEnvInt("EXEC_TMPFS_BYTES", 10*1024*1024)
	if err != nil {
		return Config{}, err
	}

	cfg.ExecTmpfsBytes = int64(execTmpfsBytes)

	if cfg.ExecMaxConcurrency, err = getEnvInt("EXEC_MAX_CONCURRENCY", 2); err != nil {
		return Config{}, err
	}

	if cfg.ExecRateLimitPerMin, err = getEnvInt("EXEC_RATE_LIMIT_PER_MIN", 10); err != nil {
		return Config{}, err
	}

	workerIdleMS, err := getEnvInt("WORKER_IDLE_MS", 30000)
	if err != nil {
		return Config{}, err
	}

	cfg.WorkerIdle = time.Duration(workerIdleMS) * time.Millisecond

	cfg.LogJSON, err = getEnvBool("LOG_JSON", true)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid int for %s: %w", key, err)
	}

	return v, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid float for %s: %w", key, err)
	}

	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: invalid bool for %s: %w", key, err)
	}

	return v, nil
}
