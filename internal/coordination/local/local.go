// Package local provides an in-process coordination.Coordinator for
// single-replica deployments and tests, where an etcd cluster would be
// pure overhead. It always wins its campaigns immediately.
package local

import (
	"context"
	"sync"

	"casare-orchestrator/internal/coordination"
)

// Coordinator is a single-process stand-in for the etcd coordinator.
type Coordinator struct{}

// New creates a local, always-leader coordinator.
func New() *Coordinator { return &Coordinator{} }

func (c *Coordinator) NewElection(name string) coordination.Election {
	return &election{}
}

func (c *Coordinator) Close() error { return nil }

type election struct {
	mu    sync.Mutex
	value string
}

func (e *election) Campaign(ctx context.Context, value string) error {
	e.mu.Lock()
	e.value = value
	e.mu.Unlock()
	return nil
}

func (e *election) Resign(ctx context.Context) error {
	e.mu.Lock()
	e.value = ""
	e.mu.Unlock()
	return nil
}

func (e *election) Leader(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, nil
}
