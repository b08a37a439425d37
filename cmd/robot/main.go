// Command robot runs a single robot process: it registers with the
// orchestrator, heartbeats, and polls for work, per spec §6. Grounded on
// the teacher's cmd/executor/main.go (config load, signal handling,
// component construction, goroutine launch, graceful shutdown), but the
// robot has no direct storage or coordination dependency of its own — it
// only ever speaks the orchestrator's JSON API via internal/agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"casare-orchestrator/internal/agent"
	"casare-orchestrator/internal/agent/runner"
	"casare-orchestrator/internal/logging"
)

func main() {
	cfg := loadAgentConfig()

	if _, err := logging.Init(logging.DefaultConfig("robot")); err != nil {
		fmt.Fprintf(os.Stderr, "robot: init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Info("robot: starting up", zap.String("name", cfg.Name), zap.String("orchestrator_url", cfg.OrchestratorURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stepRunner := runner.NewSimulatedRunner(time.Duration(getEnvAsInt("ROBOT_STEP_DURATION_MS", 200)) * time.Millisecond)
	robot := agent.New(cfg, stepRunner)

	go func() {
		if err := robot.Start(ctx); err != nil {
			logging.Fatal("robot: start", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logging.Info("robot: received signal, shutting down", zap.String("signal", sig.String()))
	cancel()

	logging.Info("robot: shutdown complete")
}

// loadAgentConfig reads the robot's own environment variables. These are
// deliberately not part of internal/config.Config: a robot process has no
// use for the orchestrator's database, coordination, or dispatch settings,
// and keeping the two configuration surfaces separate means a robot binary
// can be deployed with a minimal env file.
func loadAgentConfig() agent.Config {
	return agent.Config{
		Name:              getEnv("ROBOT_NAME", ""),
		Environment:       getEnv("ROBOT_ENVIRONMENT", "production"),
		Tags:              getEnvAsList("ROBOT_TAGS", nil),
		AffinityKey:       getEnv("ROBOT_AFFINITY_KEY", ""),
		MaxConcurrentJobs: getEnvAsInt("ROBOT_MAX_CONCURRENT_JOBS", 0),
		OrchestratorURL:   getEnv("ORCHESTRATOR_URL", "http://localhost:8080"),
		APIKey:            getEnv("ROBOT_API_KEY", ""),
		HeartbeatInterval: time.Duration(getEnvAsInt("ROBOT_HEARTBEAT_INTERVAL_SECONDS", 15)) * time.Second,
		PollTimeoutSecs:   getEnvAsInt("ROBOT_POLL_TIMEOUT_SECONDS", 20),
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
