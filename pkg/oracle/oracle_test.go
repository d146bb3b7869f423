package oracle

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rangeHandler serves k-anonymity range responses for a fixed breach map
func rangeHandler(counts map[string]int64, hits *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		prefix := strings.TrimPrefix(r.URL.Path, "/range/")

		// Pad with unrelated suffixes the way the real service does
		fmt.Fprintf(w, "%s:%d\n", strings.Repeat("0", 35), 7)
		for pw, n := range counts {
			sum := sha1.Sum([]byte(pw))
			digest := strings.ToUpper(hex.EncodeToString(sum[:]))
			if digest[:5] == prefix {
				fmt.Fprintf(w, "%s:%d\n", digest[5:], n)
			}
		}
	})
}

func newTestClient(t *testing.T, handler http.Handler, withCache bool) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cachePath := ""
	if withCache {
		cachePath = filepath.Join(t.TempDir(), "oracle-cache.db")
	}
	c, err := New(config.OracleConfig{
		BaseURL:    srv.URL,
		QueryBatch: 20,
	}, cachePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCountFindsSuffix(t *testing.T) {
	c := newTestClient(t, rangeHandler(map[string]int64{"xxyzzz": 2500}, nil), false)

	n, err := c.Count(context.Background(), "xxyzzz")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), n)
}

func TestCountAbsentPasswordIsZero(t *testing.T) {
	c := newTestClient(t, rangeHandler(map[string]int64{}, nil), false)

	n, err := c.Count(context.Background(), "definitely-not-breached")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCountServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}), false)

	_, err := c.Count(context.Background(), "whatever")
	assert.Error(t, err)
}

func TestCacheAvoidsRepeatQueries(t *testing.T) {
	var hits atomic.Int64
	c := newTestClient(t, rangeHandler(map[string]int64{"monkey": 980000}, &hits), true)

	n, err := c.Count(context.Background(), "monkey")
	require.NoError(t, err)
	assert.Equal(t, int64(980000), n)
	assert.Equal(t, int64(1), hits.Load())

	n, err = c.Count(context.Background(), "monkey")
	require.NoError(t, err)
	assert.Equal(t, int64(980000), n)
	assert.Equal(t, int64(1), hits.Load(), "second lookup must come from cache")
}

func TestCacheStoresZeroCounts(t *testing.T) {
	var hits atomic.Int64
	c := newTestClient(t, rangeHandler(map[string]int64{}, &hits), true)

	_, err := c.Count(context.Background(), "unbreached")
	require.NoError(t, err)
	_, err = c.Count(context.Background(), "unbreached")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestCountsBestEffort(t *testing.T) {
	c := newTestClient(t, rangeHandler(map[string]int64{
		"summer": 100000,
		"winter": 50000,
	}, nil), false)

	results := c.Counts(context.Background(), []string{"summer", "winter", "qzqzqz"})
	assert.Equal(t, int64(100000), results["summer"])
	assert.Equal(t, int64(50000), results["winter"])
	assert.Equal(t, int64(0), results["qzqzqz"])
}

func TestCountsFailuresYieldZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	srv.Close() // every request fails at the transport level

	c, err := New(config.OracleConfig{BaseURL: srv.URL, QueryBatch: 5}, "")
	require.NoError(t, err)

	results := c.Counts(context.Background(), []string{"a", "b"})
	assert.Equal(t, int64(0), results["a"])
	assert.Equal(t, int64(0), results["b"])
}
