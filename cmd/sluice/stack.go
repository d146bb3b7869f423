package main

import (
	"fmt"
	"os"

	"github.com/cracklabs/sluice/pkg/coordinator"
	"github.com/cracklabs/sluice/pkg/events"
	"github.com/cracklabs/sluice/pkg/feedback"
	"github.com/cracklabs/sluice/pkg/oracle"
	"github.com/cracklabs/sluice/pkg/orchestrator"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/scheduler"
	"github.com/cracklabs/sluice/pkg/state"
)

// stack is the fully wired Stage 2 pipeline. One stack owns the data
// dir lock; close releases it.
type stack struct {
	store   *state.Store
	shell   *remote.Shell
	svc     *coordinator.Client
	oracle  *oracle.Client
	broker  *events.Broker
	orch    *orchestrator.Orchestrator
	release func()
}

// buildStack acquires the data dir lock and wires shell, service
// client, oracle, analyzer, scheduler and orchestrator together
func buildStack() (*stack, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	release, err := state.Lock(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*stack, error) {
		release()
		return nil, err
	}

	store := state.NewStore(cfg.StatePath())
	if _, err := store.Load(); err != nil {
		return fail(err)
	}

	sh := remote.NewShell(cfg.Remote)

	// SQL introspection rides a separate SSH target when configured
	svc := coordinator.NewClient(cfg.Service, nil)
	if cfg.Service.SSHHost != "" {
		sqlCfg := cfg.Remote
		sqlCfg.Host = cfg.Service.SSHHost
		svc = coordinator.NewClient(cfg.Service, remote.NewShell(sqlCfg))
	}

	orc, err := oracle.New(cfg.Oracle, cfg.OracleCachePath())
	if err != nil {
		return fail(err)
	}
	an, err := feedback.New(cfg, orc)
	if err != nil {
		orc.Close()
		return fail(err)
	}

	sched := scheduler.New(store, svc, cfg.Service)
	broker := events.NewBroker()
	broker.Start()

	return &stack{
		store:   store,
		shell:   sh,
		svc:     svc,
		oracle:  orc,
		broker:  broker,
		orch:    orchestrator.New(cfg, store, sched, svc, an, sh, broker),
		release: release,
	}, nil
}

func (s *stack) close() {
	s.broker.Stop()
	if err := s.oracle.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close oracle cache: %v\n", err)
	}
	s.release()
}
