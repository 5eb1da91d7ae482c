// Package clickhouse owns the connection to the rollup warehouse.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edgeandnode/qos-oracle/pkg/retry"
	"github.com/edgeandnode/qos-oracle/pkg/utils"
	"go.uber.org/zap"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client is a ClickHouse connection bound to a target database.
type Client struct {
	Logger         *zap.Logger
	Db             driver.Conn
	TargetDatabase string
}

const (
	MergeTree          = "MergeTree"
	ReplacingMergeTree = "ReplacingMergeTree"
)

// New connects to ClickHouse using CLICKHOUSE_ADDR and returns a client
// targeting dbName. The database is created on first use by InitializeDB of
// the wrapping store; the initial connection stays on 'default'.
func New(ctx context.Context, logger *zap.Logger, dbName string) (client Client, e error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	retryConfig := retry.DefaultConfig()

	dsn := utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000?sslmode=disable")
	username, password := extractCredentials(dsn)
	addrs := extractAddrs(dsn)

	options := &clickhouse.Options{
		Addr: addrs,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: username,
			Password: password,
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"prefer_column_name_to_alias": 1,
		},
	}

	err := retry.WithBackoff(connCtx, retryConfig, logger, "clickhouse_connection", func() error {
		conn, err := clickhouse.Open(options)
		if err != nil {
			return fmt.Errorf("failed to open clickhouse connection: %w", err)
		}

		client.Logger.Debug("Pinging ClickHouse connection")
		if err := conn.Ping(connCtx); err != nil {
			return fmt.Errorf("failed to ping clickhouse: %w", err)
		}

		client.Db = conn
		client.TargetDatabase = dbName

		client.Logger.Info("ClickHouse connection ready",
			zap.String("database", dbName),
			zap.Strings("addrs", addrs))
		return nil
	})
	if err != nil {
		return Client{}, err
	}

	return client, nil
}

// Exec runs a statement.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.Db.Exec(ctx, query, args...)
}

// PrepareBatch opens an insert batch.
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

// CreateDbIfNotExists creates the named database.
func (c *Client) CreateDbIfNotExists(ctx context.Context, name string) error {
	return c.Exec(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, name))
}

// Close terminates the connection.
func (c *Client) Close() error {
	return c.Db.Close()
}

// SanitizeName sanitizes the provided database name to be compatible with
// ClickHouse.
func SanitizeName(id string) string {
	s := strings.ToLower(id)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

// extractAddrs parses comma-separated host addresses from the DSN.
func extractAddrs(dsn string) []string {
	cleaned := strings.TrimPrefix(dsn, "clickhouse://")
	cleaned = strings.TrimPrefix(cleaned, "tcp://")

	hostPart := cleaned
	if idx := strings.Index(cleaned, "@"); idx != -1 {
		hostPart = cleaned[idx+1:]
	}
	if idx := strings.IndexAny(hostPart, "/?"); idx != -1 {
		hostPart = hostPart[:idx]
	}

	hosts := strings.Split(hostPart, ",")
	result := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			result = append(result, h)
		}
	}
	if len(result) == 0 {
		return []string{"localhost:9000"}
	}
	return result
}

// extractCredentials extracts username and password from the DSN, defaulting
// to "default" with no password.
func extractCredentials(dsn string) (string, string) {
	dsn = strings.TrimPrefix(dsn, "clickhouse://")
	dsn = strings.TrimPrefix(dsn, "tcp://")

	atIdx := strings.Index(dsn, "@")
	if atIdx == -1 {
		return "default", ""
	}
	credentials := dsn[:atIdx]

	colonIdx := strings.Index(credentials, ":")
	if colonIdx == -1 {
		return credentials, ""
	}
	return credentials[:colonIdx], credentials[colonIdx+1:]
}
