package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Lock takes a best-effort advisory lock on the data directory. One
// orchestrator at a time is a deployment rule, not an enforced one; the
// lock only catches the obvious double-start.
func Lock(dataDir string) (release func(), err error) {
	path := filepath.Join(dataDir, "sluice.lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			data, readErr := os.ReadFile(path)
			if readErr == nil {
				return nil, fmt.Errorf("data dir locked by pid %s (remove %s if stale)", string(data), path)
			}
			return nil, fmt.Errorf("data dir locked (remove %s if stale)", path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()

	return func() { os.Remove(path) }, nil
}
