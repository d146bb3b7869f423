package orchestrator

import (
	"bufio"
	"fmt"
	"os"

	"github.com/cracklabs/sluice/pkg/types"
)

// writePairsFile writes hash:plain lines for one batch
func writePairsFile(path string, pairs []types.CrackedPair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pairs file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, pair := range pairs {
		fmt.Fprintf(w, "%s:%s\n", pair.Hash, pair.Plain)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write pairs file: %w", err)
	}
	return nil
}

// writePasswordsFile writes the unique plaintexts, one per line, in
// first-seen order
func writePasswordsFile(path string, pairs []types.CrackedPair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create passwords file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	seen := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, dup := seen[pair.Plain]; dup {
			continue
		}
		seen[pair.Plain] = struct{}{}
		fmt.Fprintln(w, pair.Plain)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write passwords file: %w", err)
	}
	return nil
}
