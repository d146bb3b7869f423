package stage1

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cracklabs/sluice/pkg/types"
)

// ParsePotfile reads hash:plain lines. The plain side may be
// $HEX[...]-encoded for non-printable bytes; it is decoded to the raw
// string. Malformed lines are skipped and counted.
func ParsePotfile(path string) ([]types.CrackedPair, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open potfile: %w", err)
	}
	defer f.Close()

	var pairs []types.CrackedPair
	var malformed int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx != 40 || !isHex(line[:idx]) {
			malformed++
			continue
		}
		pairs = append(pairs, types.CrackedPair{
			Hash:  strings.ToUpper(line[:idx]),
			Plain: DecodePlain(line[idx+1:]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("failed to read potfile: %w", err)
	}
	return pairs, malformed, nil
}

// DecodePlain resolves $HEX[...] encoding to the raw bytes; anything
// else passes through unchanged
func DecodePlain(plain string) string {
	if !strings.HasPrefix(plain, "$HEX[") || !strings.HasSuffix(plain, "]") {
		return plain
	}
	raw, err := hex.DecodeString(plain[5 : len(plain)-1])
	if err != nil {
		return plain
	}
	return string(raw)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// AppendPairs appends pairs to a JSONL file, skipping hashes already
// present so a re-run does not duplicate lines. Returns how many lines
// were appended.
func AppendPairs(path string, pairs []types.CrackedPair) (int64, error) {
	existing, err := loadPairHashes(path)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create pearls dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open pearls file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	var appended int64
	for _, pair := range pairs {
		if _, dup := existing[pair.Hash]; dup {
			continue
		}
		existing[pair.Hash] = struct{}{}
		if err := enc.Encode(pair); err != nil {
			return appended, fmt.Errorf("failed to append pearl: %w", err)
		}
		appended++
	}
	if err := w.Flush(); err != nil {
		return appended, fmt.Errorf("failed to flush pearls file: %w", err)
	}
	return appended, nil
}

// loadPairHashes reads the hash column of the JSONL into a set. A
// missing file is an empty set.
func loadPairHashes(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to open pearls file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var pair types.CrackedPair
		if err := json.Unmarshal(scanner.Bytes(), &pair); err != nil {
			continue
		}
		set[pair.Hash] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pearls file: %w", err)
	}
	return set, nil
}
