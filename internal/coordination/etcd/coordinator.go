// Package etcd implements coordination.Coordinator over etcd's concurrency
// primitives, adapted from the teacher's pkg/coordination/etcd/coordinator.go.
package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"casare-orchestrator/internal/coordination"
)

// EtcdCoordinator backs coordination.Coordinator with a single etcd client
// and concurrency session shared by every election campaign it creates.
type EtcdCoordinator struct {
	client  *clientv3.Client
	session *concurrency.Session
}

// NewEtcdCoordinator dials endpoints and opens a concurrency session with
// the given lease TTL in seconds.
func NewEtcdCoordinator(endpoints []string, ttl int) (*EtcdCoordinator, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd: connect: %w", err)
	}

	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(ttl))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd: create session: %w", err)
	}

	return &EtcdCoordinator{client: cli, session: sess}, nil
}

func (c *EtcdCoordinator) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	return c.client.Close()
}

// NewElection creates a campaign under /orchestrator/elections/<name>. The
// orchestrator uses three fixed campaign names: "dispatch", "recovery", and
// "schedule", per spec §7.
func (c *EtcdCoordinator) NewElection(name string) coordination.Election {
	e := concurrency.NewElection(c.session, "/orchestrator/elections/"+name)
	return &EtcdElection{election: e}
}

// EtcdElection wraps concurrency.Election.
type EtcdElection struct {
	election *concurrency.Election
}

func (e *EtcdElection) Campaign(ctx context.Context, value string) error {
	return e.election.Campaign(ctx, value)
}

func (e *EtcdElection) Resign(ctx context.Context) error {
	return e.election.Resign(ctx)
}

func (e *EtcdElection) Leader(ctx context.Context) (string, error) {
	resp, err := e.election.Leader(ctx)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}
