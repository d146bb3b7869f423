package oracle

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var bucketCounts = []byte("counts")

// Client queries the breach-count oracle with k-anonymity range requests:
// only the first five hex chars of the SHA-1 leave the process. Responses
// are cached in a local bolt file so roots recurring across batches do
// not re-spend the per-batch query budget.
type Client struct {
	baseURL    string
	http       *http.Client
	db         *bolt.DB
	queryBatch int
	batchGap   time.Duration
	logger     zerolog.Logger
}

// New creates a client. cachePath may be empty to disable caching.
func New(cfg config.OracleConfig, cachePath string) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: 15 * time.Second},
		queryBatch: cfg.QueryBatch,
		batchGap:   cfg.BatchGap.D(),
		logger:     log.WithComponent("oracle"),
	}
	if c.queryBatch <= 0 {
		c.queryBatch = 20
	}

	if cachePath != "" {
		db, err := bolt.Open(cachePath, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open oracle cache: %w", err)
		}
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketCounts)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create cache bucket: %w", err)
		}
		c.db = db
	}
	return c, nil
}

// Close releases the cache file
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Count returns the breach count for one password. Network failures are
// reported to the caller; Counts converts them to 0.
func (c *Client) Count(ctx context.Context, password string) (int64, error) {
	if n, ok := c.cached(password); ok {
		metrics.OracleQueries.WithLabelValues("cached").Inc()
		return n, nil
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build oracle request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.OracleQueries.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.OracleQueries.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("oracle returned %d", resp.StatusCode)
	}

	count := int64(0)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		if strings.EqualFold(line[:idx], suffix) {
			n, convErr := strconv.ParseInt(strings.TrimSpace(line[idx+1:]), 10, 64)
			if convErr == nil {
				count = n
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.OracleQueries.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to read oracle response: %w", err)
	}

	if count > 0 {
		metrics.OracleQueries.WithLabelValues("found").Inc()
	} else {
		metrics.OracleQueries.WithLabelValues("miss").Inc()
	}
	c.store(password, count)
	return count, nil
}

// Counts resolves a set of passwords, at most queryBatch in flight at a
// time with a gap between waves. Best-effort: a failed query yields 0
// for that password, the conservative fallback.
func (c *Client) Counts(ctx context.Context, passwords []string) map[string]int64 {
	results := make(map[string]int64, len(passwords))
	var mu sync.Mutex

	for start := 0; start < len(passwords); start += c.queryBatch {
		end := start + c.queryBatch
		if end > len(passwords) {
			end = len(passwords)
		}

		var wg sync.WaitGroup
		for _, pw := range passwords[start:end] {
			wg.Add(1)
			go func(pw string) {
				defer wg.Done()
				n, err := c.Count(ctx, pw)
				if err != nil {
					c.logger.Debug().Err(err).Msg("oracle query failed, treating as 0")
					n = 0
				}
				mu.Lock()
				results[pw] = n
				mu.Unlock()
			}(pw)
		}
		wg.Wait()

		if end < len(passwords) && c.batchGap > 0 {
			select {
			case <-time.After(c.batchGap):
			case <-ctx.Done():
				// Abandon remaining queries; absent entries read as 0
				return results
			}
		}
	}
	return results
}

func (c *Client) cached(password string) (int64, bool) {
	if c.db == nil {
		return 0, false
	}
	var n int64
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCounts).Get([]byte(password))
		if v == nil {
			return nil
		}
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil
		}
		n, found = parsed, true
		return nil
	})
	return n, found
}

func (c *Client) store(password string, count int64) {
	if c.db == nil {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCounts).Put([]byte(password), []byte(strconv.FormatInt(count, 10)))
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache oracle count")
	}
}
