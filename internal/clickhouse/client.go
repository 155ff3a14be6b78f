package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/retry"
)

// Client wraps a ClickHouse connection with retry on transient failures.
type Client struct {
	conn     driver.Conn
	retryCfg retry.Config
}

// Options configures the ClickHouse connection.
type Options struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	RetryCfg retry.Config
}

// NewClient creates a new ClickHouse client and verifies connectivity.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", opts.Host, opts.Port)},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	c := &Client{conn: conn, retryCfg: opts.RetryCfg}

	if err := retry.Do(ctx, c.retryCfg, func() error {
		return conn.Ping(ctx)
	}); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Info().
		Str("host", opts.Host).
		Int("port", opts.Port).
		Str("database", opts.Database).
		Msg("Connected to ClickHouse")

	return c, nil
}

// Conn returns the underlying driver connection for batch operations.
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// RetryConfig returns the retry configuration used by this client.
func (c *Client) RetryConfig() retry.Config {
	return c.retryCfg
}

// Query runs a query with retry on transient failures.
func (c *Client) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (driver.Rows, error) {
		return c.conn.Query(ctx, query, args...)
	})
}

// QueryRow runs a single-row query. Errors surface on Scan, so no retry here.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}

// Exec runs a statement with retry on transient failures.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.conn.Exec(ctx, query, args...)
	})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureSchema creates the log and metrics tables if they do not exist.
//
// vehicle_logs uses ReplacingMergeTree keyed on the record fingerprint, so a
// replay of an already-ingested range collapses to a single row per record
// after merges. The pre-insert fingerprint check in the writer keeps the
// duplicate window small; the engine guarantees eventual uniqueness.
func (c *Client) EnsureSchema(ctx context.Context) error {
	const logsDDL = `
		CREATE TABLE IF NOT EXISTS vehicle_logs (
			file_id     UInt64,
			vehicle_id  String,
			timestamp   DateTime64(3, 'UTC'),
			level       LowCardinality(String),
			code        String,
			message     String,
			fingerprint FixedString(64),
			created_at  DateTime DEFAULT now(),
			INDEX idx_vehicle vehicle_id TYPE bloom_filter GRANULARITY 4,
			INDEX idx_code code TYPE bloom_filter GRANULARITY 4,
			INDEX idx_ts timestamp TYPE minmax GRANULARITY 4
		) ENGINE = ReplacingMergeTree
		ORDER BY fingerprint
	`

	const metricsDDL = `
		CREATE TABLE IF NOT EXISTS ingest_metrics (
			timestamp          DateTime,
			file_id            UInt64,
			object_key         String,
			bytes_processed    UInt64,
			lines_processed    UInt64,
			records_parsed     UInt64,
			records_inserted   UInt64,
			records_rejected   UInt64,
			duration_ms        UInt64,
			records_per_second Float64
		) ENGINE = MergeTree
		ORDER BY (timestamp, file_id)
	`

	if err := c.Exec(ctx, logsDDL); err != nil {
		return fmt.Errorf("failed to create vehicle_logs table: %w", err)
	}
	if err := c.Exec(ctx, metricsDDL); err != nil {
		return fmt.Errorf("failed to create ingest_metrics table: %w", err)
	}

	log.Debug().Msg("ClickHouse schema ensured")
	return nil
}
