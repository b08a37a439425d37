// Package config loads orchestrator configuration from the environment,
// following the teacher's configs/config.go pattern (typed getters with
// fallbacks) rather than a config file parser.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting enumerated in spec §6.
type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (events bus only — never authoritative queue state)
	RedisHost string
	RedisPort string

	// Etcd (leader election)
	EtcdEndpoints     []string
	LeaderElectionTTL int

	// HTTP API
	APIPort string

	// Auth
	AuthEnabled bool
	JWTSecret   string
	JWTIssuer   string
	APIKeys     []string

	// Artifact store
	ArtifactBackend      string // "s3" or "local"
	ArtifactBucket       string
	ArtifactPrefix       string
	ArtifactRegion       string
	ArtifactEndpoint     string
	ArtifactLocalDir     string
	InlinePayloadMaxSize int64

	// Orchestrator timing, per spec §6.
	VisibilityTimeout              time.Duration
	HeartbeatTimeout               time.Duration
	DispatchInterval               time.Duration
	RecoveryMonitorInterval        time.Duration
	DefaultJobTimeout              time.Duration
	DefaultRequeueDelay            time.Duration
	MaxRetries                     int
	RetryBackoffSeconds            []int
	MaxConcurrentExecutionsPerSchedule int
	HistoryRetentionDays           int
	LoadBalancing                  string
	CheckpointRecoveryEnabled      bool
	DLQEnabled                     bool
	DispatchBatchSize              int

	// Circuit breaker defaults, per spec §6.
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
	BreakerSuccessThreshold int
}

// Load reads configuration from the environment, applying spec §6 defaults.
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "orchestrator"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "orchestrator"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),

		EtcdEndpoints:     getEnvAsList("ETCD_ENDPOINTS", []string{"localhost:2379"}),
		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 15),

		APIPort: getEnv("API_PORT", "8080"),

		AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "casare-orchestrator"),
		APIKeys:     getEnvAsList("ROBOT_API_KEYS", nil),

		ArtifactBackend:      getEnv("ARTIFACT_BACKEND", "local"),
		ArtifactBucket:       getEnv("ARTIFACT_BUCKET", "orchestrator-artifacts"),
		ArtifactPrefix:       getEnv("ARTIFACT_PREFIX", "artifacts/"),
		ArtifactRegion:       getEnv("ARTIFACT_REGION", "us-east-1"),
		ArtifactEndpoint:     getEnv("ARTIFACT_ENDPOINT", ""),
		ArtifactLocalDir:     getEnv("ARTIFACT_LOCAL_DIR", "/tmp/orchestrator-artifacts"),
		InlinePayloadMaxSize: getEnvAsInt64("INLINE_PAYLOAD_MAX_SIZE", 32*1024),

		VisibilityTimeout:       getEnvAsSeconds("VISIBILITY_TIMEOUT_SECONDS", 30),
		HeartbeatTimeout:        getEnvAsSeconds("HEARTBEAT_TIMEOUT_SECONDS", 60),
		DispatchInterval:        getEnvAsSeconds("DISPATCH_INTERVAL_SECONDS", 5),
		RecoveryMonitorInterval: getEnvAsSeconds("RECOVERY_MONITOR_INTERVAL_SECONDS", 30),
		DefaultJobTimeout:       getEnvAsSeconds("DEFAULT_JOB_TIMEOUT_SECONDS", 3600),
		DefaultRequeueDelay:     getEnvAsSeconds("DEFAULT_REQUEUE_DELAY_SECONDS", 10),
		MaxRetries:              getEnvAsInt("MAX_RETRIES", 5),
		RetryBackoffSeconds:     getEnvAsIntList("RETRY_BACKOFF_SECONDS", []int{10, 60, 300, 900, 3600}),
		MaxConcurrentExecutionsPerSchedule: getEnvAsInt("MAX_CONCURRENT_EXECUTIONS_PER_SCHEDULE", 3),
		HistoryRetentionDays:               getEnvAsInt("HISTORY_RETENTION_DAYS", 30),
		LoadBalancing:                      getEnv("LOAD_BALANCING", "LEAST_LOADED"),
		CheckpointRecoveryEnabled:          getEnvAsBool("CHECKPOINT_RECOVERY_ENABLED", true),
		DLQEnabled:                         getEnvAsBool("DLQ_ENABLED", true),
		DispatchBatchSize:                  getEnvAsInt("DISPATCH_BATCH_SIZE", 100),

		BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerRecoveryTimeout:  getEnvAsSeconds("BREAKER_RECOVERY_TIMEOUT_SECONDS", 30),
		BreakerSuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 2),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

func getEnvAsSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackSeconds)) * time.Second
}

func getEnvAsList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsIntList(key string, fallback []int) []int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
