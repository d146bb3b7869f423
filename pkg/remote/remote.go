package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// Error is a classified remote-operation failure
type Error struct {
	Kind types.FailureKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transient network failure
func IsNetwork(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == types.FailureNetwork
}

// Runner executes a local command and returns its stdout. The production
// runner shells out; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return string(out), err
	}
	return string(out), nil
}

// Shell wraps SSH access to the remote cracking host. It shells out to
// the system ssh/scp binaries so the operator's ssh config (agent auth,
// ProxyJump, host aliases) applies unchanged.
type Shell struct {
	host           string
	connectTimeout time.Duration
	commandTimeout time.Duration
	runner         Runner
	logger         zerolog.Logger
}

// NewShell creates a shell adapter for the configured host
func NewShell(cfg config.RemoteConfig) *Shell {
	return &Shell{
		host:           cfg.Host,
		connectTimeout: cfg.ConnectTimeout.D(),
		commandTimeout: cfg.CommandTimeout.D(),
		runner:         execRunner{},
		logger:         log.WithComponent("remote"),
	}
}

// NewShellWithRunner creates a shell adapter with a custom runner (tests)
func NewShellWithRunner(host string, runner Runner) *Shell {
	return &Shell{
		host:           host,
		connectTimeout: 10 * time.Second,
		commandTimeout: 60 * time.Second,
		runner:         runner,
		logger:         log.WithComponent("remote"),
	}
}

// Exec runs cmd on the remote host with the default command timeout
func (s *Shell) Exec(ctx context.Context, cmd string) (string, error) {
	return s.ExecTimeout(ctx, cmd, s.commandTimeout)
}

// ExecTimeout runs cmd on the remote host with an explicit timeout
func (s *Shell) ExecTimeout(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(s.connectTimeout.Seconds())),
		"-o", "BatchMode=yes",
		s.host, cmd,
	}

	out, err := s.runner.Run(ctx, "ssh", args...)
	if err != nil {
		return out, s.classify("exec", ctx, err)
	}
	return out, nil
}

// Upload copies a local file to the remote host
func (s *Shell) Upload(ctx context.Context, local, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	_, err := s.runner.Run(ctx, "scp", "-o", "BatchMode=yes",
		local, s.host+":"+remotePath)
	if err != nil {
		return s.classify("upload "+local, ctx, err)
	}
	return nil
}

// Download copies a remote file to the local path
func (s *Shell) Download(ctx context.Context, remotePath, local string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	_, err := s.runner.Run(ctx, "scp", "-o", "BatchMode=yes",
		s.host+":"+remotePath, local)
	if err != nil {
		return s.classify("download "+remotePath, ctx, err)
	}
	return nil
}

// RemoteFileSize returns the size of a remote file in bytes, or -1 if it
// does not exist
func (s *Shell) RemoteFileSize(ctx context.Context, remotePath string) (int64, error) {
	out, err := s.Exec(ctx, fmt.Sprintf("stat -c %%s %q 2>/dev/null || echo -1", remotePath))
	if err != nil {
		return 0, err
	}
	var size int64
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &size); err != nil {
		return 0, &Error{Kind: types.FailureNetwork, Op: "stat " + remotePath,
			Err: fmt.Errorf("unexpected stat output %q", strings.TrimSpace(out))}
	}
	return size, nil
}

// ExecSQL delivers a query to the remote SQL client base64-encoded, which
// sidesteps shell quoting of quotes, backticks and semicolons entirely.
func (s *Shell) ExecSQL(ctx context.Context, database, query string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(query))
	cmd := fmt.Sprintf("echo %s | base64 -d | mysql -N -B %s", encoded, database)
	return s.Exec(ctx, cmd)
}

// classify maps an execution failure to a failure kind. ssh exits 255 on
// transport failure; remote command failures surface their own codes.
func (s *Shell) classify(op string, ctx context.Context, err error) error {
	kind := types.FailureNetwork

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() != 255 {
			kind = types.FailureLaunch
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		kind = types.FailureNetwork
		err = fmt.Errorf("timed out: %w", err)
	}

	s.logger.Debug().Err(err).Str("op", op).Str("kind", string(kind)).Msg("remote operation failed")
	return &Error{Kind: kind, Op: op, Err: err}
}
