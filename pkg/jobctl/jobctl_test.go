package jobctl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShell scripts probe responses per command kind. Queue entries are
// raw stdout; the sentinel "ERR" yields a network failure. The last
// entry of a queue is sticky.
type fakeShell struct {
	mu    sync.Mutex
	cmds  []string
	procQ []string // pgrep
	sessQ []string // screen -ls
	logQ  []string // log-done grep
	potQ  []string // wc -l
	pingQ []string // bare "true" connectivity check: "OK" or "ERR"
}

func netErr(op string) error {
	return &remote.Error{Kind: types.FailureNetwork, Op: op, Err: errors.New("connection reset")}
}

func pop(q *[]string, def string) string {
	if len(*q) == 0 {
		return def
	}
	v := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return v
}

func (f *fakeShell) Exec(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)

	respond := func(q *[]string, def string) (string, error) {
		v := pop(q, def)
		if v == "ERR" {
			return "", netErr(cmd)
		}
		return v + "\n", nil
	}

	switch {
	case cmd == "true":
		v := pop(&f.pingQ, "OK")
		if v == "ERR" {
			return "", netErr(cmd)
		}
		return "", nil
	case strings.Contains(cmd, "pgrep"):
		return respond(&f.procQ, "0")
	case strings.Contains(cmd, "screen -ls"):
		return respond(&f.sessQ, "0")
	case strings.Contains(cmd, "grep -cE"):
		return respond(&f.logQ, "0")
	case strings.Contains(cmd, "wc -l"):
		return respond(&f.potQ, "0")
	default:
		return "", nil
	}
}

func (f *fakeShell) sawCommand(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cmds {
		if strings.Contains(c, sub) {
			return true
		}
	}
	return false
}

func newTestController(sh shell) *Controller {
	return &Controller{
		sh:             sh,
		workDir:        "/opt/cracking",
		binary:         "hashcat",
		sessionPrefix:  "sluice",
		pollInterval:   time.Millisecond,
		launchSettle:   time.Millisecond,
		reconcileGap:   time.Millisecond,
		reconnectBase:  time.Millisecond,
		reconnectCap:   time.Millisecond,
		reconnectLimit: time.Second,
		logger:         zerolog.Nop(),
		sleep:          func(ctx context.Context, d time.Duration) error { return nil },
	}
}

var testSpec = Spec{
	Batch:   "batch-0007",
	Command: "hashcat -m 100 hashlists/batch-0007.txt wordlists/beta.txt",
	Potfile: "potfiles/batch-0007.pot",
	LogPath: "logs/batch-0007.log",
}

func TestRunAttackHappyPath(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"0", "1", "0"}, // pre-launch, post-launch, final poll
		procQ: []string{"0", "1", "1", "0"},
		logQ:  []string{"1"},
		potQ:  []string{"100", "120", "250", "250"},
	}
	c := newTestController(sh)

	res, err := c.RunAttack(context.Background(), testSpec)
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.NewCracks)

	assert.True(t, sh.sawCommand("screen -dmS sluice-batch-0007"))
	assert.True(t, sh.sawCommand("rm -f"))
	assert.True(t, sh.sawCommand("hashcat -m 100"))
}

func TestRunAttackAdoptsExistingSession(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"1", "0"},
		procQ: []string{"0"},
		logQ:  []string{"1"},
		potQ:  []string{"50", "80", "80"},
	}
	c := newTestController(sh)

	res, err := c.RunAttack(context.Background(), testSpec)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.NewCracks)

	// Adoption must not relaunch
	assert.False(t, sh.sawCommand("screen -dmS"))
}

func TestRunAttackRefusesOrphan(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"0"},
		procQ: []string{"2"}, // cracking processes outside our session
	}
	c := newTestController(sh)

	_, err := c.RunAttack(context.Background(), testSpec)
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, types.FailureOrphan, re.Kind)
	assert.False(t, sh.sawCommand("screen -dmS"))
}

func TestRunAttackLaunchFailure(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"0", "0"},
		procQ: []string{"0", "0"},
	}
	c := newTestController(sh)

	_, err := c.RunAttack(context.Background(), testSpec)
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, types.FailureLaunch, re.Kind)
}

func TestRunAttackMissedPollsTrustPotfile(t *testing.T) {
	// Process gone, session gone, no terminal marker: two consecutive
	// missed polls end the job with the potfile as truth.
	sh := &fakeShell{
		sessQ: []string{"0", "1", "0"},
		procQ: []string{"0", "1", "0"},
		logQ:  []string{"0"},
		potQ:  []string{"10", "30", "30"},
	}
	c := newTestController(sh)

	res, err := c.RunAttack(context.Background(), testSpec)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.NewCracks)
}

func TestRunAttackReconnectsAfterDrop(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"1", "0"},
		procQ: []string{"ERR", "0"}, // first poll drops, then resumes
		pingQ: []string{"OK"},
		logQ:  []string{"1"},
		potQ:  []string{"10", "25", "25"},
	}
	c := newTestController(sh)

	res, err := c.RunAttack(context.Background(), testSpec)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.NewCracks)
}

func TestRunAttackReconnectGivesUp(t *testing.T) {
	sh := &fakeShell{
		sessQ: []string{"1"},
		procQ: []string{"ERR"},
		pingQ: []string{"ERR"},
	}
	c := newTestController(sh)
	c.reconnectLimit = 0

	_, err := c.RunAttack(context.Background(), testSpec)
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, types.FailureTimeout, re.Kind)
}

func TestStablePotfileCountWaitsForNonDecreasing(t *testing.T) {
	sh := &fakeShell{potQ: []string{"100", "150", "200"}}
	c := newTestController(sh)

	n, err := c.stablePotfileCount(context.Background(), "pot")
	require.NoError(t, err)
	assert.Equal(t, int64(200), n)

	sh2 := &fakeShell{potQ: []string{"100", "100"}}
	c2 := newTestController(sh2)
	n, err = c2.stablePotfileCount(context.Background(), "pot")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestQuit(t *testing.T) {
	sh := &fakeShell{}
	c := newTestController(sh)

	require.NoError(t, c.Quit(context.Background(), "batch-0007"))
	assert.True(t, sh.sawCommand("screen -S sluice-batch-0007 -X quit"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
