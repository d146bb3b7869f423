package coordinator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// sqlShell runs read-mostly SQL against the service's database over SSH
type sqlShell interface {
	ExecSQL(ctx context.Context, database, query string) (string, error)
}

// Client wraps the coordination service's HTTP API and its SQL
// introspection side channel. Writes retry once on transient failures;
// idempotent reads retry up to three times.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	sql       sqlShell
	retryBase time.Duration
	logger    zerolog.Logger
}

// NewClient creates a client for the configured service. sql may be nil
// when SQL introspection is not configured.
func NewClient(cfg config.ServiceConfig, sql sqlShell) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: 60 * time.Second},
		sql:       sql,
		retryBase: time.Second,
		logger:    log.WithComponent("coordinator"),
	}
}

// TaskRequest describes one attack submission
type TaskRequest struct {
	HashlistID     string `json:"hashlistId"`
	Name           string `json:"name"`
	AttackCmd      string `json:"attackCmd"`
	WordlistFileID string `json:"wordlistFileId,omitempty"`
	RuleFileID     string `json:"ruleFileId,omitempty"`
	Mask           string `json:"mask,omitempty"`
}

// TaskInfo is one entry of the task listing
type TaskInfo struct {
	TaskID     string `json:"taskId"`
	Name       string `json:"name"`
	AttackCmd  string `json:"attackCmd"`
	HashlistID string `json:"hashlistId"`
}

// CreateHashlist registers a batch's hashes and returns the assigned
// hashlist identifier
func (c *Client) CreateHashlist(ctx context.Context, name string, hashes []string) (string, error) {
	body := map[string]interface{}{"name": name, "hashes": hashes}
	var resp struct {
		HashlistID string `json:"hashlistId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/hashlists", body, &resp, 2); err != nil {
		return "", fmt.Errorf("failed to create hashlist %s: %w", name, err)
	}
	return resp.HashlistID, nil
}

// CreateTask submits one attack and returns the task identifier
func (c *Client) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	var resp struct {
		TaskID string `json:"taskId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/tasks", req, &resp, 2); err != nil {
		return "", fmt.Errorf("failed to create task %s: %w", req.Name, err)
	}
	return resp.TaskID, nil
}

// GetTaskStatus reads a task's progress
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error) {
	var resp struct {
		PercentComplete  float64 `json:"percentComplete"`
		Keyspace         int64   `json:"keyspace"`
		KeyspaceProgress int64   `json:"keyspaceProgress"`
		IsArchived       bool    `json:"isArchived"`
		CrackedCount     int64   `json:"crackedCount"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+taskID+"/status", nil, &resp, 3); err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return &types.TaskStatus{
		TaskID:           taskID,
		PercentComplete:  resp.PercentComplete,
		Keyspace:         resp.Keyspace,
		KeyspaceProgress: resp.KeyspaceProgress,
		IsArchived:       resp.IsArchived,
		CrackedCount:     resp.CrackedCount,
	}, nil
}

// GetCrackedCount reads the hashlist's total cracked counter. Attack
// crack deltas are computed against this before and after each task.
func (c *Client) GetCrackedCount(ctx context.Context, hashlistID string) (int64, error) {
	var resp struct {
		Cracked int64 `json:"cracked"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/hashlists/"+hashlistID, nil, &resp, 3); err != nil {
		return 0, fmt.Errorf("failed to get hashlist: %w", err)
	}
	return resp.Cracked, nil
}

// GetCrackedHashes bulk-downloads the (hash, plain) pairs of a hashlist.
/// The service streams hash:plain lines; plain may be $HEX[...]-encoded.
func (c *Client) GetCrackedHashes(ctx context.Context, hashlistID string) ([]types.CrackedPair, error) {
	var pairs []types.CrackedPair

	err := c.withRetry(ctx, 3, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/hashlists/"+hashlistID+"/cracked", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return &remote.Error{Kind: types.FailureNetwork, Op: "download cracked", Err: err}
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}

		pairs = pairs[:0]
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			idx := strings.IndexByte(line, ':')
			if idx <= 0 {
				continue
			}
			pairs = append(pairs, types.CrackedPair{
				Hash:  strings.ToUpper(line[:idx]),
				Plain: line[idx+1:],
			})
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download cracked hashes: %w", err)
	}
	return pairs, nil
}

// ListTasks lists all tasks known to the service
func (c *Client) ListTasks(ctx context.Context) ([]TaskInfo, error) {
	var resp []TaskInfo
	if err := c.doJSON(ctx, http.MethodGet, "/tasks", nil, &resp, 3); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return resp, nil
}

// doJSON performs a JSON request with retry
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}, attempts int) error {
	return c.withRetry(ctx, attempts, func() error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := c.newRequest(ctx, method, path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &remote.Error{Kind: types.FailureNetwork, Op: method + " " + path, Err: err}
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// checkStatus classifies non-2xx responses: 5xx is transient, the rest
// are not retried
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	err := fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 500 {
		return &remote.Error{Kind: types.FailureNetwork, Op: "http", Err: err}
	}
	return err
}

func (c *Client) withRetry(ctx context.Context, attempts int, fn func() error) error {
	return remote.Retry(ctx, attempts, c.retryBase, fn)
}
