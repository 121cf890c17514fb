package db

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite"
)

// SQLite has no COPY, so bulk loads are chunked into multi-row transactions.
const sqliteBatchSize = 500

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type CopyCapable interface {
	CopyFrom(ctx context.Context, table string, columns []string, filePath string) (int64, error)
}

type Database struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver Driver
}

// ParseDSN picks the driver for a connection string. postgres:// and
// postgresql:// URLs go to pgx; sqlite://path, file: URIs, :memory: and
// paths ending in .db/.sqlite go to SQLite.
func ParseDSN(dsn string) (Driver, string, error) {
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return "", "", errors.New("empty database connection string")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DriverSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"), dsn == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return DriverSQLite, dsn, nil
	}
	return "", "", fmt.Errorf("unrecognized database connection string %q", dsn)
}

func NewDatabaseConnection(ctx context.Context, domainStringName string) (*Database, error) {
	driver, source, err := ParseDSN(domainStringName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(driver), source)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY between our own writers.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	database := &Database{db: db, driver: driver}
	if driver != DriverPostgres {
		return database, nil
	}

	pool, err := pgxpool.New(ctx, source)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		_ = db.Close()
		return nil, fmt.Errorf("pgxpool ping: %w", err)
	}

	database.pool = pool
	return database, nil
}

func (db *Database) Driver() Driver {
	return db.driver
}

func (db *Database) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	if db.pool != nil {
		db.pool.Close()
	}
	glog.V(1).Info("DB closed.")
	return db.db.Close()
}

func (db *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (db *Database) WithTx(ctx context.Context, fn func(DBTX) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func quoteProtect(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func buildCopyQuery(tableName string, columns []string) string {
	protectedColumns := make([]string, len(columns))
	for i, col := range columns {
		protectedColumns[i] = quoteProtect(col)
	}

	return fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true)",
		tableName,
		strings.Join(protectedColumns, ", "),
	)
}

func buildInsertQuery(tableName string, columns []string, rows int) string {
	protectedColumns := make([]string, len(columns))
	for i, col := range columns {
		protectedColumns[i] = quoteProtect(col)
	}

	tuples := make([]string, rows)
	n := 1
	for r := 0; r < rows; r++ {
		placeholders := make([]string, len(columns))
		for c := range columns {
			placeholders[c] = fmt.Sprintf("$%d", n)
			n++
		}
		tuples[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		tableName,
		strings.Join(protectedColumns, ", "),
		strings.Join(tuples, ", "),
	)
}

// CopyFromSlice bulk-loads length rows produced by next. Postgres uses the
// COPY protocol through pgxpool; SQLite falls back to batched INSERTs in a
// single transaction.
func (db *Database) CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	if length == 0 {
		return 0, nil
	}

	if db.pool != nil {
		n, err := db.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(length, next))
		if err != nil {
			return n, fmt.Errorf("copy into %s: %w", table, err)
		}
		return n, nil
	}

	var written int64
	err := db.WithTx(ctx, func(tx DBTX) error {
		var err error
		written, err = insertBatches(ctx, tx, table, columns, length, next)
		return err
	})
	return written, err
}

func insertBatches(ctx context.Context, tx DBTX, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	var written int64
	batch := make([]any, 0, sqliteBatchSize*len(columns))
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rows := len(batch) / len(columns)
		if _, err := tx.ExecContext(ctx, buildInsertQuery(table, columns, rows), batch...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
		written += int64(rows)
		batch = batch[:0]
		return nil
	}

	for i := 0; i < length; i++ {
		values, err := next(i)
		if err != nil {
			return written, err
		}
		if len(values) != len(columns) {
			return written, fmt.Errorf("row %d has %d values, want %d", i, len(values), len(columns))
		}
		batch = append(batch, values...)
		if len(batch) >= sqliteBatchSize*len(columns) {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}

// BulkTx is a transaction that can also bulk-load rows.
type BulkTx interface {
	Exec(ctx context.Context, query string, args ...any) error
	CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error)
}

type pgxBulkTx struct {
	tx pgx.Tx
}

func (bulk pgxBulkTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := bulk.tx.Exec(ctx, query, args...)
	return err
}

func (bulk pgxBulkTx) CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	if length == 0 {
		return 0, nil
	}
	n, err := bulk.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(length, next))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

type sqlBulkTx struct {
	tx DBTX
}

func (bulk sqlBulkTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := bulk.tx.ExecContext(ctx, query, args...)
	return err
}

func (bulk sqlBulkTx) CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	return insertBatches(ctx, bulk.tx, table, columns, length, next)
}

// WithBulkTx runs fn in one transaction: a pgxpool transaction with COPY on
// Postgres, a database/sql transaction with batched INSERTs on SQLite.
// Nothing fn wrote survives an error.
func (db *Database) WithBulkTx(ctx context.Context, fn func(BulkTx) error) error {
	if db.pool == nil {
		return db.WithTx(ctx, func(tx DBTX) error {
			return fn(sqlBulkTx{tx: tx})
		})
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(pgxBulkTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CopyFromCSVFile loads a CSV file whose header row names the given
// columns.
func (db *Database) CopyFromCSVFile(ctx context.Context, table string, columns []string, filePath string) (int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if db.pool == nil {
		return db.insertCSV(ctx, table, columns, file)
	}

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection from pool: %w", err)
	}
	defer conn.Release()

	copyQuery := buildCopyQuery(table, columns)
	res, err := conn.Conn().PgConn().CopyFrom(ctx, file, copyQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to copy from CSV file: %w", err)
	}
	return res.RowsAffected(), nil
}

func (db *Database) insertCSV(ctx context.Context, table string, columns []string, file io.Reader) (int64, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}

	var rows [][]any
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read %s row: %w", table, err)
		}

		row := make([]any, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = record[i]
			} else {
				row[i] = ""
			}
		}
		rows = append(rows, row)
	}

	return db.CopyFromSlice(ctx, table, columns, len(rows), func(i int) ([]any, error) {
		return rows[i], nil
	})
}

func (db *Database) CopyFrom(ctx context.Context, table string, columns []string, filePath string) (int64, error) {
	return db.CopyFromCSVFile(ctx, table, columns, filePath)
}
