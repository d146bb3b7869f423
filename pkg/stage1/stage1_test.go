package stage1

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/jobctl"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gravelHashes = []string{
	"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	"BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
	"CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC",
	"DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD",
	"EEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEE",
}

// cracks two of the five, one of them $HEX-encoded ("hi!")
const potfileContent = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA:summer123\n" +
	"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb:$HEX[686921]\n"

type fakeShell struct {
	remote   map[string]int64
	uploads  []string
	cmds     []string
	download string
}

func (f *fakeShell) Exec(_ context.Context, cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	return "", nil
}

func (f *fakeShell) Upload(_ context.Context, local, remotePath string) error {
	info, err := os.Stat(local)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, remotePath)
	f.remote[remotePath] = info.Size()
	return nil
}

func (f *fakeShell) Download(_ context.Context, remotePath, local string) error {
	return os.WriteFile(local, []byte(f.download), 0644)
}

func (f *fakeShell) RemoteFileSize(_ context.Context, remotePath string) (int64, error) {
	if size, ok := f.remote[remotePath]; ok {
		return size, nil
	}
	return -1, nil
}

type fakeJobs struct {
	calls int
	err   error
	cmds  []string
}

func (f *fakeJobs) RunAttack(_ context.Context, spec jobctl.Spec) (*types.JobResult, error) {
	f.calls++
	f.cmds = append(f.cmds, spec.Command)
	if f.err != nil {
		return nil, f.err
	}
	return &types.JobResult{NewCracks: 2, DurationSeconds: 120}, nil
}

func newTestProcessor(t *testing.T) (*Processor, *fakeShell, *fakeJobs, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	require.NoError(t, os.MkdirAll(cfg.GravelDir(), 0755))
	gravel := filepath.Join(cfg.GravelDir(), "batch-0001.txt")
	require.NoError(t, os.WriteFile(gravel, []byte(strings.Join(gravelHashes, "\n")+"\n"), 0644))

	assets := t.TempDir()
	cfg.Stage1.Wordlist = filepath.Join(assets, "baseline.txt")
	cfg.Stage1.Rules = filepath.Join(assets, "universal.rule")
	require.NoError(t, os.WriteFile(cfg.Stage1.Wordlist, []byte("summer\n"), 0644))
	require.NoError(t, os.WriteFile(cfg.Stage1.Rules, []byte("$1\n"), 0644))

	sh := &fakeShell{remote: make(map[string]int64), download: potfileContent}
	jobs := &fakeJobs{}
	store := state.NewStage1Store(cfg.Stage1StatePath())
	_, err := store.Load()
	require.NoError(t, err)

	return New(cfg, sh, jobs, store), sh, jobs, cfg
}

func readGzipLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestProcessHappyPath(t *testing.T) {
	p, sh, jobs, cfg := newTestProcessor(t)

	result, err := p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.PearlCount)
	assert.Equal(t, int64(3), result.SandCount)
	assert.Equal(t, "40.00", result.CrackRate)
	assert.Equal(t, float64(120), result.Duration)

	// Pearls JSONL carries the decoded $HEX plain
	data, err := os.ReadFile(cfg.PearlsFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plain":"summer123"`)
	assert.Contains(t, string(data), `"plain":"hi!"`)

	sand := readGzipLines(t, filepath.Join(cfg.SandDir(), "batch-0001.txt.gz"))
	assert.Equal(t, gravelHashes[2:], sand)

	// Hash file, wordlist and rules all uploaded; command names them
	assert.Len(t, sh.uploads, 3)
	require.Len(t, jobs.cmds, 1)
	assert.Contains(t, jobs.cmds[0], "hashcat -m 100 -a 0")
	assert.Contains(t, jobs.cmds[0], "--potfile-path")

	// Per-batch remote files removed
	joined := strings.Join(sh.cmds, "\n")
	assert.Contains(t, joined, "rm -f "+cfg.Remote.WorkDir+"/hashlists/batch-0001.txt")
	assert.Contains(t, joined, "rm -f "+cfg.Remote.WorkDir+"/potfiles/batch-0001.pot")
}

func TestProcessIdempotent(t *testing.T) {
	p, _, jobs, cfg := newTestProcessor(t)

	first, err := p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)

	second, err := p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, jobs.calls, "completed batch must not re-run the attack")

	// Pearls file unchanged by the short-circuited run
	data, err := os.ReadFile(cfg.PearlsFile())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestProcessRerunBeforeStateWriteSameCounts(t *testing.T) {
	p, _, _, cfg := newTestProcessor(t)

	_, err := p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)

	// Simulate a crash after the data writes but before the state write
	store := state.NewStage1Store(cfg.Stage1StatePath())
	_, err = store.Load()
	require.NoError(t, err)
	p.store = store
	p.store.Fail("batch-0001", errors.New("crashed"))

	result, err := p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.PearlCount)
	assert.Equal(t, int64(3), result.SandCount)

	// Re-run appended no duplicate pearls
	data, err := os.ReadFile(cfg.PearlsFile())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestProcessAttackFailure(t *testing.T) {
	p, _, jobs, _ := newTestProcessor(t)
	jobs.err = errors.New("launch failed")

	_, err := p.Process(context.Background(), "batch-0001")
	require.Error(t, err)

	rec := p.store.Batch("batch-0001")
	require.NotNil(t, rec)
	assert.Equal(t, types.BatchStatusFailed, rec.Status)
}

func TestProcessSkipsUploadWhenSizesMatch(t *testing.T) {
	p, sh, _, cfg := newTestProcessor(t)

	info, err := os.Stat(filepath.Join(cfg.GravelDir(), "batch-0001.txt"))
	require.NoError(t, err)
	sh.remote[cfg.Remote.WorkDir+"/hashlists/batch-0001.txt"] = info.Size()

	_, err = p.Process(context.Background(), "batch-0001")
	require.NoError(t, err)
	assert.NotContains(t, sh.uploads, cfg.Remote.WorkDir+"/hashlists/batch-0001.txt")
}

func TestProcessMissingGravel(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)

	_, err := p.Process(context.Background(), "batch-9999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gravel file")
}

func TestParsePotfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pot")
	content := potfileContent + "garbage line\nshort:plain\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	pairs, malformed, err := ParsePotfile(path)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, int64(2), malformed)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", pairs[0].Hash)
	assert.Equal(t, "summer123", pairs[0].Plain)
	assert.Equal(t, "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", pairs[1].Hash, "hash is uppercased")
	assert.Equal(t, "hi!", pairs[1].Plain)
}

func TestDecodePlain(t *testing.T) {
	assert.Equal(t, "hi!", DecodePlain("$HEX[686921]"))
	assert.Equal(t, "plain", DecodePlain("plain"))
	assert.Equal(t, "$HEX[zz]", DecodePlain("$HEX[zz]"), "invalid hex passes through")
	assert.Equal(t, "pass:word", DecodePlain("pass:word"))
}

func TestAppendPearlsDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pearls.jsonl")
	pairs := []types.CrackedPair{
		{Hash: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Plain: "one"},
		{Hash: "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", Plain: "two"},
	}

	n, err := AppendPairs(path, pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = AppendPairs(path, pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}
