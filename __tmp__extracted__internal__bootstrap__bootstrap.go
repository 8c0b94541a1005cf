// Package bootstrap wires every component's dependencies from one
// place: config is loaded once, a single logger is built and passed
// by reference into each component, and no package anywhere keeps a
// global singleton client. This mirrors the teacher's main.go
// construction order (stores, then hub, then manager, then server)
// generalized to the larger dependency graph this spec requires.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/applog"
	"github.com/collabhub/server/internal/authn"
	"github.com/collabhub/server/internal/blobstore"
	"github.com/collabhub/server/internal/config"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/execqueue"
	"github.com/collabhub/server/internal/gateway"
	"github.com/collabhub/server/internal/httpapi"
	"github.com/collabhub/server/internal/hub"
	"github.com/collabhub/server/internal/ratelimit"
	"github.com/collabhub/server/internal/sandbox"
	"github.com/collabhub/server/internal/updatelog"
	"github.com/collabhub/server/internal/users"
)

// App holds every long-lived component, assembled once and shut down
// once.
type App struct {
	Config config.Config
	Logger zerolog.Logger

	DB    *sql.DB
	Redis *redis.Client

	Docs     *docstore.Store
	Log      *updatelog.Log
	Blobs    *blobstore.Store
	Identity *users.Directory
	Verifier *authn.Verifier
	Limiter  *ratelimit.Limiter
	Sandbox  *sandbox.Runner
	Queue    *execqueue.Queue
	Registry *hub.Registry

	HTTPServer *http.Server
	WSServer   *gateway.Server
}

// defaultImages is the fixed language-to-image map for the sandbox
// runner. Spec §4.10 leaves the supported language set to the
// deployer; these are reasonable defaults for a code-editor product.
func defaultImages() map[string]sandbox.Image {
	return map[string]sandbox.Image{
		"python": {
			Ref:     "docker.io/library/python:3.11-slim",
			Command: []string{"python3", "-c", "import sys; exec(sys.stdin.read())"},
		},
		"node": {
			Ref:     "docker.io/library/node:20-slim",
			Command: []string{"node", "--input-type=module"},
		},
		"java": {
			Ref:     "docker.io/library/eclipse-temurin:17-jdk-alpine",
			Command: []string{"sh", "-c", "cat > /work/__CLASSNAME__.java && javac /work/__CLASSNAME__.java -d /work && java -cp /work __CLASSNAME__"},
		},
	}
}

// New assembles the App from configuration. It opens the database and
// Redis connections but does not start listening; call Run for that.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	level := zerolog.InfoLevel

	logger := applog.New(applog.Options{JSON: cfg.LogJSON, Level: level})

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.PGPoolMax)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.QueueURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse queue url: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping().Err(); err != nil {
		return nil, fmt.Errorf("bootstrap: ping redis: %w", err)
	}

	var blobs *blobstore.Store

	if cfg.BlobEnabled {
		blobs, err = blobstore.New(blobstore.Config{
			Endpoint: cfg.BlobEndpoint, Region: cfg.BlobRegion, Bucket: cfg.BlobBucket,
			AccessKeyID: cfg.BlobAccessKeyID, SecretAccessKey: cfg.BlobSecretAccessKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: construct blob store: %w", err)
		}

		if err := blobs.EnsureBucket(ctx, cfg.BlobRegion); err != nil {
			logger.Warn().Err(err).Msg("could not ensure snapshot bucket, snapshots will fail until it exists")
		}
	}

	docs := docstore.New(db, logger)
	log := updatelog.New(db, logger)
	identity := users.New(db, logger)
	verifier := authn.New(authn.Config{JWKSURL: cfg.AuthJWKSURL, Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience}, logger)
	limiter := ratelimit.New(redisClient, ratelimit.Config{Window: 60 * time.Second, Limit: cfg.ExecRateLimitPerMin}, logger)

	sb := sandbox.New(ctx, sandbox.Config{SocketPath: cfg.SandboxSocketPath, Images: defaultImages()}, logger)

	queue := execqueue.New(redisClient, sb, execqueue.Config{
		MaxConcurrency: cfg.ExecMaxConcurrency,
		WorkerIdle:     cfg.WorkerIdle,
	}, logger)

	registry := hub.NewRegistry(hub.RegistryConfig{
		Log:   log,
		Blobs: blobs,
		Policy: hub.SnapshotPolicy{
			EveryNUpdates: cfg.SnapshotEveryNUpdates,
			EveryInterval: cfg.SnapshotEveryMS,
			Prune:         cfg.PruneUpdatesBeforeSnapshot,
			Retention:     cfg.SnapshotRetention,
		},
		IdleAfter: cfg.HubIdleTimeout,
		Logger:    logger,
	})

	queue.OnResult(func(job execqueue.Job, result execqueue.Result) {
		if job.DocumentID == "" {
			return
		}

		if h, ok := registry.Peek(job.DocumentID); ok {
			h.BroadcastExecuteResult(job.ID, string(result.Status), result.Reason, result.Stdout, result.Stderr, result.ExitCode)
		}
	})

	httpServer := httpapi.New(httpapi.Config{
		Docs: docs, Verifier: verifier, Identity: identity, Limiter: limiter, Queue: queue,
		Exec: httpapi.ExecConfig{
			MaxCodeBytes:   cfg.ExecCodeMaxBytes,
			DefaultTimeout: cfg.ExecTimeout,
			SupportedLangs: map[string]bool{"python": true, "node": true, "java": true},
		},
		Logger: logger,
	})

	wsServer := gateway.New(gateway.Config{
		Registry: registry, Docs: docs, Verifier: verifier, Identity: identity,
		FrontendOrigin: cfg.FrontendOrigin, Logger: logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/", httpServer.Handler())
	mux.Handle("/ws", wsServer)

	return &App{
		Config: cfg, Logger: logger,
		DB: db, Redis: redisClient,
		Docs: docs, Log: log, Blobs: blobs, Identity: identity, Verifier: verifier,
		Limiter: limiter, Sandbox: sb, Queue: queue, Registry: registry,
		HTTPServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		WSServer: wsServer,
	}, nil
}

// Run starts listening and blocks until the server stops.
func (a *App) Run() error {
	a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting server")
	return a.HTTPServer.ListenAndServe()
}

// Shutdown drains in-flight work and closes every owned connection.
func (a *App) Shutdown(ctx context.Context) {
	_ = a.HTTPServer.Shutdown(ctx)

	a.Queue.Shutdown(ctx)
	a.Registry.Stop()

	if err := a.Sandbox.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("error closing sandbox client")
	}

	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("error closing redis client")
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("error closing database")
	}
}


