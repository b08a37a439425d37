// Command orchestrator runs the Orchestrator Facade and its JSON/HTTP API
// in a single process, grounded on the teacher's cmd/api and cmd/scheduler
// binaries — collapsed into one here since the Facade's Start/Stop already
// owns every background loop's lifetime (spec §9), leaving the API server
// as the only second lifecycle to sequence alongside it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"casare-orchestrator/internal/api"
	"casare-orchestrator/internal/artifacts"
	"casare-orchestrator/internal/auth"
	"casare-orchestrator/internal/config"
	"casare-orchestrator/internal/coordination"
	coordetcd "casare-orchestrator/internal/coordination/etcd"
	coordlocal "casare-orchestrator/internal/coordination/local"
	"casare-orchestrator/internal/dispatch"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/orchestrator"
	"casare-orchestrator/internal/policy"
	"casare-orchestrator/internal/recovery"
	"casare-orchestrator/internal/resilience"
	"casare-orchestrator/internal/schedule"
	"casare-orchestrator/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	if _, err := logging.Init(logging.DefaultConfig("orchestrator")); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Info("orchestrator: starting up")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	connStr := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	db, err := postgres.Open(connStr)
	if err != nil {
		logging.Fatal("orchestrator: connect postgres", zap.Error(err))
	}
	defer db.Close()
	logging.Info("orchestrator: postgres connected")

	var coordinator coordination.Coordinator
	if len(cfg.EtcdEndpoints) > 0 {
		etcdCoord, err := coordetcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.LeaderElectionTTL)
		if err != nil {
			logging.Warn("orchestrator: etcd unavailable, falling back to local single-replica coordination", zap.Error(err))
			coordinator = coordlocal.New()
		} else {
			coordinator = etcdCoord
			defer etcdCoord.Close()
			logging.Info("orchestrator: etcd connected")
		}
	} else {
		coordinator = coordlocal.New()
	}

	var bus events.Bus
	redisAddr := fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)
	if redisBus, err := events.NewRedisBus(redisAddr); err != nil {
		logging.Warn("orchestrator: redis unavailable, falling back to in-process event bus", zap.Error(err))
		bus = events.NewLocalBus()
	} else {
		bus = redisBus
		logging.Info("orchestrator: redis event bus connected")
	}

	artifactStore, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logging.Fatal("orchestrator: init artifact store", zap.Error(err))
	}
	logging.Info("orchestrator: artifact store ready", zap.String("backend", cfg.ArtifactBackend))

	var jwtService *auth.JWTService
	var apiKeyStore auth.APIKeyStore
	if cfg.AuthEnabled {
		jwtService, err = auth.NewJWTService(auth.JWTConfig{
			SecretKey:     cfg.JWTSecret,
			Issuer:        cfg.JWTIssuer,
			TokenExpiry:   15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
		})
		if err != nil {
			logging.Fatal("orchestrator: init jwt service", zap.Error(err))
		}
		apiKeyStore = auth.NewRedisAPIKeyStore(redis.NewClient(&redis.Options{Addr: redisAddr}))
		logging.Info("orchestrator: auth enabled")
	}

	policyEngine := policy.New(defaultPolicyRules(), resilience.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerRecoveryTimeout,
		MaxRequests:      cfg.BreakerSuccessThreshold,
	}, cfg.RetryBackoffSeconds)

	facade := orchestrator.New(orchestrator.Deps{
		Jobs:        db.Jobs(),
		Robots:      db.Robots(),
		Schedules:   db.Schedules(),
		Checkpoints: db.Checkpoints(),
		DLQ:         db.DLQ(),
		Coordinator: coordinator,
		Bus:         bus,
		Policy:      policyEngine,

		DispatchConfig: dispatch.Config{
			Interval:         cfg.DispatchInterval,
			BatchSize:        cfg.DispatchBatchSize,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
			LoadBalancing:    cfg.LoadBalancing,
		},
		RecoveryConfig: recovery.Config{
			MonitorInterval:           cfg.RecoveryMonitorInterval,
			HeartbeatTimeout:          cfg.HeartbeatTimeout,
			DefaultRequeueDelay:       cfg.DefaultRequeueDelay,
			DefaultJobTimeout:         cfg.DefaultJobTimeout,
			CheckpointRecoveryEnabled: cfg.CheckpointRecoveryEnabled,
			DLQEnabled:                cfg.DLQEnabled,
			BackoffSeconds:            cfg.RetryBackoffSeconds,
		},
		ScheduleConfig: schedule.Config{
			TickInterval:  10 * time.Second,
			HistoryRetain: time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour,
			MaxConcurrent: cfg.MaxConcurrentExecutionsPerSchedule,
		},

		Artifacts:            artifactStore,
		InlinePayloadMaxSize: cfg.InlinePayloadMaxSize,
	})

	facade.Start(ctx)
	logging.Info("orchestrator: facade started")

	server := api.NewServer(api.Config{
		Port:                  cfg.APIPort,
		Facade:                facade,
		JWTService:            jwtService,
		APIKeyStore:           apiKeyStore,
		AuthEnabled:           cfg.AuthEnabled,
		HeartbeatTimeout:      cfg.HeartbeatTimeout,
		AssignmentPollTimeout: 20 * time.Second,
	})

	go func() {
		if err := server.Start(); err != nil {
			logging.Error("orchestrator: api server error", zap.Error(err))
		}
	}()
	logging.Info("orchestrator: api server started", zap.String("port", cfg.APIPort))

	sig := <-sigChan
	logging.Info("orchestrator: received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("orchestrator: api shutdown error", zap.Error(err))
	}

	cancel()
	facade.Stop(shutdownCtx)

	logging.Info("orchestrator: shutdown complete")
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	if cfg.ArtifactBackend == "s3" {
		return artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:   cfg.ArtifactBucket,
			Prefix:   cfg.ArtifactPrefix,
			Region:   cfg.ArtifactRegion,
			Endpoint: cfg.ArtifactEndpoint,
		})
	}
	return artifacts.NewLocalStore(cfg.ArtifactLocalDir)
}

// defaultPolicyRules returns the baseline per-job recovery policy rule set
// applied when no operator-configured rule set is loaded (spec §4.7 allows
// deploy-time configuration; these are the orchestrator's conservative
// built-in defaults).
func defaultPolicyRules() []models.PolicyRule {
	return []models.PolicyRule{
		{
			Name:       "ui-locate-retry",
			ErrorKinds: []models.ErrorKind{models.ErrorUILocateFailure},
			MaxRetries: 3,
			Action:     models.ActionRetry,
		},
		{
			Name:       "transient-retry",
			ErrorKinds: []models.ErrorKind{models.ErrorTransient, models.ErrorTimeout, models.ErrorExternalUnavailable},
			MaxRetries: 5,
			Action:     models.ActionRetry,
		},
		{
			Name:       "validation-abort",
			ErrorKinds: []models.ErrorKind{models.ErrorValidation, models.ErrorPermanent},
			MaxRetries: 0,
			Action:     models.ActionAbort,
		},
		{
			Name:            "auth-escalate",
			ErrorKinds:      []models.ErrorKind{models.ErrorAuth},
			Action:          models.ActionEscalate,
			EscalateMessage: "authentication error reported by robot, operator review required",
			TimeoutSeconds:  300,
			DefaultOnTimeout: models.ActionAbort,
		},
		{
			Name:   "default-escalate",
			Action: models.ActionEscalate,
			EscalateMessage: "unclassified node failure",
			TimeoutSeconds:   300,
			DefaultOnTimeout: models.ActionAbort,
		},
	}
}
