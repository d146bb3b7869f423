package sift

import (
	"bufio"
	"compress/gzip"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cracklabs/sluice/pkg/log"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Key is a SHA-1 hash in binary form. Keeping keys binary instead of hex
// strings roughly halves the hot memory cost of the PEARLS set (~8 GB for
// 2x10^8 entries including table overhead).
type Key [20]byte

// Set is an in-memory hash set of binary SHA-1 keys
type Set map[Key]struct{}

// ParseKey converts a 40-char hex line into a binary key. Returns false
// for malformed lines (wrong length or non-hex).
func ParseKey(line string) (Key, bool) {
	var k Key
	if len(line) != 40 {
		return k, false
	}
	if _, err := hex.Decode(k[:], []byte(strings.ToUpper(line))); err != nil {
		return k, false
	}
	return k, true
}

// Counts summarizes one subtraction pass
type Counts struct {
	Read      int64
	Excluded  int64
	Kept      int64
	Malformed int64
	OutFiles  int
}

// Summary renders a humanized end-of-run report line
func (c Counts) Summary() string {
	return fmt.Sprintf("read %s, excluded %s, kept %s, skipped %s malformed",
		humanize.Comma(c.Read), humanize.Comma(c.Excluded),
		humanize.Comma(c.Kept), humanize.Comma(c.Malformed))
}

// Engine computes SAND = GRAVEL − PEARLS under a bounded memory budget:
// PEARLS is held in memory, GRAVEL streams through.
type Engine struct {
	// BatchSize is the maximum line count of each output file
	BatchSize int
	logger    zerolog.Logger
}

// NewEngine creates an engine with the given output batch size
func NewEngine(batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 1_000_000
	}
	return &Engine{
		BatchSize: batchSize,
		logger:    log.WithComponent("sift"),
	}
}

// LoadPearls reads a HASH:PLAIN file into a Set. Lines without a valid
// 40-hex prefix are counted as malformed and skipped.
func LoadPearls(path string) (Set, int64, error) {
	r, err := openMaybeGzip(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open pearls file: %w", err)
	}
	defer r.Close()

	set := make(Set)
	var malformed int64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			idx = len(line)
		}
		k, ok := ParseKey(strings.TrimSpace(line[:idx]))
		if !ok {
			malformed++
			continue
		}
		set[k] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("failed to read pearls file: %w", err)
	}
	return set, malformed, nil
}

// Run streams every GRAVEL batch file in dir through the exclude set and
// writes SAND files of at most BatchSize lines to outDir, named in
// sequence. Input order (sorted file names, line order within each file)
// is preserved so the stage is deterministic.
func (e *Engine) Run(gravelDir string, exclude Set, outDir string) (Counts, error) {
	var counts Counts

	files, err := listBatchFiles(gravelDir)
	if err != nil {
		return counts, err
	}
	if len(files) == 0 {
		return counts, fmt.Errorf("no gravel batch files in %s", gravelDir)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return counts, fmt.Errorf("failed to create output dir: %w", err)
	}

	w := newChunkWriter(outDir, e.BatchSize)

	for _, f := range files {
		e.logger.Info().Str("file", filepath.Base(f)).Msg("sifting gravel batch")
		if err := e.siftFile(f, exclude, w, &counts); err != nil {
			w.abort()
			return counts, err
		}
	}

	if err := w.close(); err != nil {
		return counts, err
	}
	counts.OutFiles = w.fileCount

	// |SAND| + |PEARLS ∩ GRAVEL| = |GRAVEL| (malformed lines excluded)
	if counts.Kept+counts.Excluded+counts.Malformed != counts.Read {
		e.logger.Error().
			Int64("read", counts.Read).
			Int64("kept", counts.Kept).
			Int64("excluded", counts.Excluded).
			Msg("sift count mismatch")
	}

	e.logger.Info().Msg("sift complete: " + counts.Summary())
	return counts, nil
}

func (e *Engine) siftFile(path string, exclude Set, w *chunkWriter, counts *Counts) error {
	r, err := openMaybeGzip(path)
	if err != nil {
		return fmt.Errorf("failed to open gravel file: %w", err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		counts.Read++

		k, ok := ParseKey(line)
		if !ok {
			counts.Malformed++
			continue
		}
		if _, hit := exclude[k]; hit {
			counts.Excluded++
			continue
		}
		if err := w.writeLine(strings.ToUpper(line)); err != nil {
			return err
		}
		counts.Kept++
	}
	return scanner.Err()
}

// SubtractFile filters a single hash file against the exclude set and
// writes the survivors to dst (gzip when dst ends in .gz). Used by the
// Stage 1 processor to compute one batch's SAND. A write failure removes
// the partial output.
func SubtractFile(src string, exclude Set, dst string) (Counts, error) {
	var counts Counts

	r, err := openMaybeGzip(src)
	if err != nil {
		return counts, fmt.Errorf("failed to open source: %w", err)
	}
	defer r.Close()

	f, err := os.Create(dst)
	if err != nil {
		return counts, fmt.Errorf("failed to create output: %w", err)
	}

	var out io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(dst, ".gz") {
		gz = gzip.NewWriter(f)
		out = gz
	}
	bw := bufio.NewWriter(out)

	fail := func(err error) (Counts, error) {
		f.Close()
		os.Remove(dst)
		return counts, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		counts.Read++

		k, ok := ParseKey(line)
		if !ok {
			counts.Malformed++
			continue
		}
		if _, hit := exclude[k]; hit {
			counts.Excluded++
			continue
		}
		if _, err := bw.WriteString(strings.ToUpper(line) + "\n"); err != nil {
			return fail(fmt.Errorf("failed to write output: %w", err))
		}
		counts.Kept++
	}
	if err := scanner.Err(); err != nil {
		return fail(fmt.Errorf("failed to read source: %w", err))
	}

	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush output: %w", err))
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fail(fmt.Errorf("failed to close gzip stream: %w", err))
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return counts, fmt.Errorf("failed to close output: %w", err)
	}
	counts.OutFiles = 1
	return counts, nil
}

// listBatchFiles returns the .txt/.txt.gz files in dir, sorted by name
func listBatchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read gravel dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".txt.gz") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	err := g.gz.Close()
	if ferr := g.f.Close(); err == nil {
		err = ferr
	}
	return err
}
