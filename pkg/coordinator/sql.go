package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// The SQL side channel reads the service's own tables (Hashlist, Task,
// Chunk, Agent) for checks the HTTP API does not expose, and frees work
// units stuck on dead agents. Queries are delivered base64-encoded over
// SSH; only the base64 form is supported here.

const serviceDatabase = "hashtopolis"

// TaskFullyDispatched reports whether every chunk of a task has been
// completed (chunk state 4) or the task has no chunks left pending
func (c *Client) TaskFullyDispatched(ctx context.Context, taskID string) (bool, error) {
	if c.sql == nil {
		return false, fmt.Errorf("sql introspection not configured")
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM Chunk WHERE taskId = %s AND state NOT IN (4, 9);",
		sqlNumber(taskID))
	out, err := c.sql.ExecSQL(ctx, serviceDatabase, query)
	if err != nil {
		return false, fmt.Errorf("failed to query chunk state: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return false, fmt.Errorf("unexpected chunk count %q", strings.TrimSpace(out))
	}
	return n == 0, nil
}

// FreeStuckChunks releases chunks assigned to agents that have not
// checked in for ten minutes, so a rebooted agent node does not strand
// work units. Returns the number of chunks released.
func (c *Client) FreeStuckChunks(ctx context.Context) (int, error) {
	if c.sql == nil {
		return 0, fmt.Errorf("sql introspection not configured")
	}

	query := "UPDATE Chunk SET state = 0, agentId = NULL " +
		"WHERE state = 1 AND agentId IN " +
		"(SELECT agentId FROM Agent WHERE lastTime < UNIX_TIMESTAMP() - 600); " +
		"SELECT ROW_COUNT();"
	out, err := c.sql.ExecSQL(ctx, serviceDatabase, query)
	if err != nil {
		return 0, fmt.Errorf("failed to free stuck chunks: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected row count %q", strings.TrimSpace(out))
	}
	return n, nil
}

// AgentReachable reports whether an agent has checked in recently
func (c *Client) AgentReachable(ctx context.Context, agentID string, withinSeconds int64) (bool, error) {
	if c.sql == nil {
		return false, fmt.Errorf("sql introspection not configured")
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM Agent WHERE agentId = %s AND lastTime >= UNIX_TIMESTAMP() - %d;",
		sqlNumber(agentID), withinSeconds)
	out, err := c.sql.ExecSQL(ctx, serviceDatabase, query)
	if err != nil {
		return false, fmt.Errorf("failed to query agent: %w", err)
	}
	return strings.TrimSpace(out) == "1", nil
}

// sqlNumber strips anything that is not a digit, since identifiers are
// interpolated into SQL delivered to a remote shell
func sqlNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}
