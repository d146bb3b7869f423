package sift

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
)

// chunkWriter writes lines into sequentially numbered gzip files of at
// most maxLines each
type chunkWriter struct {
	dir       string
	maxLines  int
	fileCount int

	f     *os.File
	gz    *gzip.Writer
	bw    *bufio.Writer
	lines int
	path  string
}

func newChunkWriter(dir string, maxLines int) *chunkWriter {
	return &chunkWriter{dir: dir, maxLines: maxLines}
}

func (w *chunkWriter) writeLine(line string) error {
	if w.f == nil || w.lines >= w.maxLines {
		if err := w.roll(); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write sand line: %w", err)
	}
	w.lines++
	return nil
}

// roll closes the current chunk and opens the next one
func (w *chunkWriter) roll() error {
	if err := w.close(); err != nil {
		return err
	}

	w.fileCount++
	w.path = filepath.Join(w.dir, fmt.Sprintf("batch-%04d.txt.gz", w.fileCount))

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create sand file: %w", err)
	}
	w.f = f
	w.gz = gzip.NewWriter(f)
	w.bw = bufio.NewWriter(w.gz)
	w.lines = 0
	return nil
}

func (w *chunkWriter) close() error {
	if w.f == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sand file: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close sand file: %w", err)
	}
	w.f = nil
	return nil
}

// abort closes and removes the partially written chunk
func (w *chunkWriter) abort() {
	if w.f == nil {
		return
	}
	w.f.Close()
	os.Remove(w.path)
	w.f = nil
}
