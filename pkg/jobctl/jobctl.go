package jobctl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// shell is the subset of remote.Shell the controller needs
type shell interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// Spec describes one attack to run on the remote host
type Spec struct {
	Batch   string // batch name, used for the session name
	Command string // full command line for the cracking binary
	Potfile string // remote potfile path (side-channel crack counter)
	LogPath string // remote log path
}

// Controller launches one long-lived cracking process inside a detached
// screen session on the remote host and reports its true outcome. The
// session, not the SSH connection, is the ground truth: the job survives
// both SSH drops and orchestrator restarts.
type Controller struct {
	sh            shell
	workDir       string
	binary        string
	sessionPrefix string

	pollInterval   time.Duration
	launchSettle   time.Duration
	reconcileGap   time.Duration
	reconnectBase  time.Duration
	reconnectCap   time.Duration
	reconnectLimit time.Duration

	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a controller over the given shell
func New(sh shell, cfg config.RemoteConfig) *Controller {
	return &Controller{
		sh:             sh,
		workDir:        cfg.WorkDir,
		binary:         cfg.CrackerBinary,
		sessionPrefix:  cfg.SessionPrefix,
		pollInterval:   cfg.PollInterval.D(),
		launchSettle:   3 * time.Second,
		reconcileGap:   5 * time.Second,
		reconnectBase:  10 * time.Second,
		reconnectCap:   cfg.ReconnectCap.D(),
		reconnectLimit: cfg.ReconnectLimit.D(),
		logger:         log.WithComponent("jobctl"),
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) sessionName(batch string) string {
	return c.sessionPrefix + "-" + batch
}

// RunAttack drives one attack to completion: launch (or adopt), poll,
// reconcile. The reported duration includes any SSH outage time. The exit
// code is never consulted; the potfile delta is the truth.
func (c *Controller) RunAttack(ctx context.Context, spec Spec) (*types.JobResult, error) {
	logger := c.logger.With().Str("batch", spec.Batch).Logger()
	session := c.sessionName(spec.Batch)
	start := time.Now()

	potBefore, err := c.potfileCount(ctx, spec.Potfile)
	if err != nil {
		return nil, fmt.Errorf("failed to read potfile before launch: %w", err)
	}

	adopted, err := c.launchOrAdopt(ctx, spec, session, &logger)
	if err != nil {
		return nil, err
	}
	if adopted {
		logger.Info().Str("session", session).Msg("adopted existing session")
	}

	if err := c.pollUntilDone(ctx, spec, session, &logger); err != nil {
		return nil, err
	}

	potAfter, err := c.stablePotfileCount(ctx, spec.Potfile)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile potfile: %w", err)
	}

	result := &types.JobResult{
		NewCracks:       potAfter - potBefore,
		DurationSeconds: time.Since(start).Seconds(),
	}
	logger.Info().
		Int64("new_cracks", result.NewCracks).
		Float64("duration_s", result.DurationSeconds).
		Msg("attack finished")
	return result, nil
}

// launchOrAdopt starts the detached session unless one already exists.
// A cracking process running outside our session is someone else's work;
// refusing to adopt it guards against misattributing cracks.
func (c *Controller) launchOrAdopt(ctx context.Context, spec Spec, session string, logger *zerolog.Logger) (adopted bool, err error) {
	sessionAlive, err := c.probeSession(ctx, session)
	if err != nil {
		return false, err
	}
	if sessionAlive {
		return true, nil
	}

	procs, err := c.probeProcesses(ctx)
	if err != nil {
		return false, err
	}
	if procs > 0 {
		return false, &remote.Error{
			Kind: types.FailureOrphan,
			Op:   "launch " + session,
			Err:  fmt.Errorf("%d %s process(es) running outside session %s", procs, c.binary, session),
		}
	}

	// Stale log from a previous run would confuse the log-done probe
	if _, err := c.sh.Exec(ctx, fmt.Sprintf("rm -f %s", shellQuote(spec.LogPath))); err != nil {
		return false, fmt.Errorf("failed to remove stale log: %w", err)
	}

	inner := fmt.Sprintf("cd %s && %s > %s 2>&1",
		shellQuote(c.workDir), spec.Command, shellQuote(spec.LogPath))
	launch := fmt.Sprintf("screen -dmS %s bash -c %s", session, shellQuote(inner))
	if _, err := c.sh.Exec(ctx, launch); err != nil {
		return false, &remote.Error{Kind: types.FailureLaunch, Op: "launch " + session, Err: err}
	}

	if err := c.sleep(ctx, c.launchSettle); err != nil {
		return false, err
	}

	procs, procErr := c.probeProcesses(ctx)
	alive, sessErr := c.probeSession(ctx, session)
	if procErr == nil && sessErr == nil && procs == 0 && !alive {
		tail, _ := c.sh.Exec(ctx, fmt.Sprintf("tail -n 20 %s 2>/dev/null", shellQuote(spec.LogPath)))
		return false, &remote.Error{
			Kind: types.FailureLaunch,
			Op:   "launch " + session,
			Err:  fmt.Errorf("process did not start; log tail: %s", strings.TrimSpace(tail)),
		}
	}

	logger.Info().Str("session", session).Msg("launched attack")
	return false, nil
}

// pollUntilDone polls the three probes until the job is done. Probe
// errors mean a suspected SSH drop and enter the reconnect loop.
func (c *Controller) pollUntilDone(ctx context.Context, spec Spec, session string, logger *zerolog.Logger) error {
	missed := 0

	for {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}

		procs, err := c.probeProcesses(ctx)
		if err != nil {
			if err := c.reconnect(ctx, logger); err != nil {
				return err
			}
			continue
		}

		if procs > 0 {
			missed = 0
			progress, _ := c.potfileCount(ctx, spec.Potfile)
			logger.Debug().Int64("pot_lines", progress).Msg("attack running")
			continue
		}

		sessionAlive, err := c.probeSession(ctx, session)
		if err != nil {
			if err := c.reconnect(ctx, logger); err != nil {
				return err
			}
			continue
		}
		if sessionAlive {
			// Session lingering after process exit; treat as a miss
			missed++
			if missed >= 2 {
				return nil
			}
			continue
		}

		done, err := c.probeLogDone(ctx, spec.LogPath)
		if err != nil {
			if err := c.reconnect(ctx, logger); err != nil {
				return err
			}
			continue
		}
		if done {
			return nil
		}

		// Process exited without the terminal marker. After two
		// consecutive missed polls, trust the potfile.
		missed++
		if missed >= 2 {
			logger.Warn().Msg("no terminal log marker; treating potfile as truth")
			return nil
		}
	}
}

// reconnect retries connectivity with backoff 10s x attempt, capped at
// the configured ceiling, giving up after the reconnect limit
func (c *Controller) reconnect(ctx context.Context, logger *zerolog.Logger) error {
	deadline := time.Now().Add(c.reconnectLimit)

	for attempt := 1; ; attempt++ {
		wait := time.Duration(attempt) * c.reconnectBase
		if wait > c.reconnectCap {
			wait = c.reconnectCap
		}
		logger.Warn().Int("attempt", attempt).Dur("backoff", wait).Msg("ssh drop suspected, reconnecting")

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return &remote.Error{
				Kind: types.FailureTimeout,
				Op:   "reconnect",
				Err:  fmt.Errorf("gave up after %s", c.reconnectLimit),
			}
		}

		if _, err := c.sh.Exec(ctx, "true"); err == nil {
			logger.Info().Int("attempts", attempt).Msg("ssh reconnected")
			metrics.SSHReconnects.Inc()
			return nil
		}
	}
}

// Quit kills the session by name. Not called on orchestrator shutdown:
// the default is leave-alive, and a later run re-adopts the session.
func (c *Controller) Quit(ctx context.Context, batch string) error {
	session := c.sessionName(batch)
	if _, err := c.sh.Exec(ctx, fmt.Sprintf("screen -S %s -X quit", session)); err != nil {
		return fmt.Errorf("failed to quit session %s: %w", session, err)
	}
	return nil
}

// probeProcesses counts running cracking processes
func (c *Controller) probeProcesses(ctx context.Context) (int, error) {
	out, err := c.sh.Exec(ctx, fmt.Sprintf("pgrep -c -x %s || true", c.binary))
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

// probeSession reports whether our named session exists
func (c *Controller) probeSession(ctx context.Context, session string) (bool, error) {
	out, err := c.sh.Exec(ctx, fmt.Sprintf("screen -ls | grep -c %s || true", shellQuote("."+session+"\t")))
	if err != nil {
		return false, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return false, nil
	}
	return n > 0, nil
}

// probeLogDone reports whether the log tail carries a terminal status
func (c *Controller) probeLogDone(ctx context.Context, logPath string) (bool, error) {
	cmd := fmt.Sprintf("tail -n 10 %s 2>/dev/null | grep -cE 'Exhausted|Cracked' || true", shellQuote(logPath))
	out, err := c.sh.Exec(ctx, cmd)
	if err != nil {
		return false, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return false, nil
	}
	return n > 0, nil
}

// potfileCount returns the potfile line count, 0 if the file is missing
func (c *Controller) potfileCount(ctx context.Context, potfile string) (int64, error) {
	out, err := c.sh.Exec(ctx, fmt.Sprintf("wc -l < %s 2>/dev/null || echo 0", shellQuote(potfile)))
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

// stablePotfileCount reads the count up to three times with a gap,
// waiting for it to stop growing. Protects against reading mid-append.
func (c *Controller) stablePotfileCount(ctx context.Context, potfile string) (int64, error) {
	prev, err := c.potfileCount(ctx, potfile)
	if err != nil {
		return 0, err
	}

	for i := 0; i < 2; i++ {
		if err := c.sleep(ctx, c.reconcileGap); err != nil {
			return 0, err
		}
		cur, err := c.potfileCount(ctx, potfile)
		if err != nil {
			return 0, err
		}
		if cur == prev {
			return cur, nil
		}
		prev = cur
	}
	return prev, nil
}

// shellQuote single-quotes s for safe interpolation into a shell command
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
