package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/jwoo-kim/weather-etl/internal/common"
	"github.com/jwoo-kim/weather-etl/internal/weather"
)

// Strategy selects the write semantics of a single Load call.
type Strategy string

const (
	// StrategyInsert appends the batch and fails on any primary-key clash.
	StrategyInsert Strategy = "insert"
	// StrategyUpsert deletes existing rows sharing the batch's keys, then
	// inserts the batch. Last writer wins per key, atomically per call.
	StrategyUpsert Strategy = "upsert"
	// StrategyOverwrite drops the whole table, recreates it and inserts the
	// batch. All previously loaded rows are discarded, not just this
	// batch's keys.
	StrategyOverwrite Strategy = "overwrite"
)

var (
	// ErrUnknownStrategy is returned before any I/O when a Load call names
	// a strategy outside {insert, upsert, overwrite}.
	ErrUnknownStrategy = errors.New("sink: unknown load strategy")

	// ErrDuplicateKey marks a primary-key clash under StrategyInsert.
	ErrDuplicateKey = errors.New("sink: duplicate primary key")
)

// measuredAtLayout is the wire format for the measured_at column. Plain
// DATETIME text keeps the SQL portable between MySQL and the sqlite driver
// the tests run against.
const measuredAtLayout = "2006-01-02 15:04:05"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the connection settings for the production MySQL sink.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Table    string
}

// Client executes load strategies against one configured table.
type Client struct {
	db    *sql.DB
	table string
}

// Open connects to MySQL and verifies the connection. The returned client
// must be closed by the caller on every exit path.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if !tableNameRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("sink: invalid table name %q", cfg.Table)
	}

	dsn := mysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	dsn.DBName = cfg.Database

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sink: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ping database: %w", err)
	}

	return &Client{db: db, table: cfg.Table}, nil
}

// NewClient wraps an already-open database handle. Used by tests and by
// callers that manage the connection themselves.
func NewClient(db *sql.DB, table string) *Client {
	return &Client{db: db, table: table}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Load writes the batch under the given strategy. Rows are assumed valid
// beyond the primary-key constraint; type and format correctness is the
// transformer's job.
func (c *Client) Load(ctx context.Context, rows []weather.Row, strategy Strategy) error {
	switch strategy {
	case StrategyInsert:
		return c.insert(ctx, rows)
	case StrategyUpsert:
		return c.upsert(ctx, rows)
	case StrategyOverwrite:
		return c.overwrite(ctx, rows)
	default:
		return fmt.Errorf("%w: %q (want insert, upsert or overwrite)", ErrUnknownStrategy, strategy)
	}
}

// ParseStrategy normalizes a configured strategy string.
func ParseStrategy(s string) (Strategy, error) {
	strategy := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch strategy {
	case StrategyInsert, StrategyUpsert, StrategyOverwrite:
		return strategy, nil
	default:
		return "", fmt.Errorf("%w: %q (want insert, upsert or overwrite)", ErrUnknownStrategy, s)
	}
}

// ensureTable creates the sink table if absent. Safe to call repeatedly.
func (c *Client) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	date_key    CHAR(8)      NOT NULL,
	time_key    CHAR(6)      NOT NULL,
	measured_at DATETIME     NOT NULL,
	station_id  BIGINT       NOT NULL,
	city        VARCHAR(100),
	temperature DOUBLE,
	humidity    BIGINT,
	wind_speed  DOUBLE,
	PRIMARY KEY (date_key, time_key, station_id)
)`, c.table)

	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sink: create table %s: %w", c.table, err)
	}
	return nil
}

func (c *Client) insert(ctx context.Context, rows []weather.Row) error {
	if err := c.ensureTable(ctx); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin insert tx: %w", err)
	}
	if err := c.insertRows(ctx, tx, rows); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit insert: %w", err)
	}
	return nil
}

// upsert deletes any existing rows sharing the batch's primary keys and
// inserts the batch in one transaction. Either both statements commit or
// neither leaves effects.
func (c *Client) upsert(ctx context.Context, rows []weather.Row) error {
	if err := c.ensureTable(ctx); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin upsert tx: %w", err)
	}

	tuples := make([]string, 0, len(rows))
	args := make([]any, 0, 3*len(rows))
	for _, row := range rows {
		tuples = append(tuples, "(?, ?, ?)")
		args = append(args, row.DateKey, row.TimeKey, row.StationID)
	}
	del := fmt.Sprintf(
		"DELETE FROM %s WHERE (date_key, time_key, station_id) IN (%s)",
		c.table, strings.Join(tuples, ", "),
	)
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("sink: delete existing keys: %w", err)
	}

	if err := c.insertRows(ctx, tx, rows); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit upsert: %w", err)
	}
	return nil
}

// overwrite is a destructive full-table replace: all prior history goes,
// not only the keys present in the batch.
func (c *Client) overwrite(ctx context.Context, rows []weather.Row) error {
	if err := c.ensureTable(ctx); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", c.table)); err != nil {
		return fmt.Errorf("sink: drop table %s: %w", c.table, err)
	}
	if err := c.ensureTable(ctx); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin overwrite tx: %w", err)
	}
	if err := c.insertRows(ctx, tx, rows); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit overwrite: %w", err)
	}
	return nil
}

func (c *Client) insertRows(ctx context.Context, tx *sql.Tx, rows []weather.Row) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (date_key, time_key, measured_at, station_id, city, temperature, humidity, wind_speed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, c.table,
	))
	if err != nil {
		return fmt.Errorf("sink: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.DateKey,
			row.TimeKey,
			row.MeasuredAt.Format(measuredAtLayout),
			row.StationID,
			row.City,
			row.Temperature,
			row.Humidity,
			row.WindSpeed,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: (%s, %s, %d): %v",
					ErrDuplicateKey, row.DateKey, row.TimeKey, row.StationID, err)
			}
			return fmt.Errorf("sink: insert row (%s, %s, %d): %w",
				row.DateKey, row.TimeKey, row.StationID, err)
		}
	}
	return nil
}

// isDuplicateKey recognizes primary-key violations from both supported
// drivers: MySQL error 1062 and sqlite's constraint messages.
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return common.HasAny(err.Error(),
		"UNIQUE constraint failed",
		"PRIMARY KEY constraint",
		"constraint failed",
		"Duplicate entry",
	)
}
