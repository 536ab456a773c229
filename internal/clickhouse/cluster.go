// Package clickhouse maintains one native connection per cluster node and
// fans statement execution out to all of them. Reconciliation updates go
// through ALTER TABLE ... UPDATE, which is node-local, so every node gets
// the same statement.
package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options holds cluster connection settings
type Options struct {
	// Addrs lists the host:port pairs of the cluster nodes.
	Addrs    []string
	Database string
	Username string
	Password string
}

type node struct {
	addr string
	conn driver.Conn
}

// Cluster is a fixed set of per-node connections
type Cluster struct {
	nodes []node
}

// Open dials every node. All nodes must be reachable at startup.
func Open(ctx context.Context, opts Options) (*Cluster, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no clickhouse addresses configured")
	}

	c := &Cluster{}
	for _, addr := range opts.Addrs {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{addr},
			Auth: clickhouse.Auth{
				Database: opts.Database,
				Username: opts.Username,
				Password: opts.Password,
			},
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open clickhouse node %s: %w", addr, err)
		}
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			c.Close()
			return nil, fmt.Errorf("ping clickhouse node %s: %w", addr, err)
		}
		c.nodes = append(c.nodes, node{addr: addr, conn: conn})
	}

	log.Info().Strs("addrs", opts.Addrs).Msg("clickhouse cluster connected")
	return c, nil
}

// ExecAll runs the statement on every node in parallel. Per-node failures
// are logged and counted but never fail the overall step; the return value
// reports whether every node succeeded.
func (c *Cluster) ExecAll(ctx context.Context, query string, args ...any) bool {
	var g errgroup.Group
	failed := make([]bool, len(c.nodes))

	for i, n := range c.nodes {
		g.Go(func() error {
			if err := n.conn.Exec(ctx, query, args...); err != nil {
				failed[i] = true
				log.Error().Err(err).Str("node", n.addr).Msg("clickhouse exec failed on node")
			}
			return nil
		})
	}
	g.Wait()

	ok := true
	var failedNodes []string
	for i, f := range failed {
		if f {
			ok = false
			failedNodes = append(failedNodes, c.nodes[i].addr)
		}
	}
	if !ok {
		log.Warn().
			Str("failed_nodes", strings.Join(failedNodes, ",")).
			Int("total_nodes", len(c.nodes)).
			Msg("clickhouse fan-out completed with node failures")
	}
	return ok
}

// Close closes every node connection
func (c *Cluster) Close() {
	for _, n := range c.nodes {
		if n.conn != nil {
			n.conn.Close()
		}
	}
}
