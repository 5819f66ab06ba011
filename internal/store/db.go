package store

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/randomparity/vpo/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

// DB wraps the library store: one single-connection writer opened with an
// immediate transaction lock, and a pooled read side for the HTTP layer's
// long queries. sqlite serializes writes; keeping the writer to one
// connection makes the BEGIN IMMEDIATE claim protocol contention-free
// inside the process.
type DB struct {
	write *sqlx.DB
	read  *sqlx.DB
	path  string
}

// Open opens (and creates if needed) the store at path. busyTimeout
// bounds how long a locked claim waits before reporting contention.
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	write, err := sqlx.Open("sqlite", dsn(path, busyTimeout, true))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	write.SetMaxOpenConns(1)

	read, err := sqlx.Open("sqlite", dsn(path, busyTimeout, false))
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	read.SetMaxOpenConns(4)

	db := &DB{write: write, read: read, path: path}
	if err := db.write.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string, busyTimeout time.Duration, writer bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.Itoa(int(busyTimeout.Milliseconds()))+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	if writer {
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}

// Migrate applies the embedded schema migrations. A schema the binary
// does not understand is a startup-fatal integrity error.
func (d *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("_meta")
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIntegrity, err)
	}
	if err := goose.Up(d.write.DB, "migrations"); err != nil {
		return fmt.Errorf("%w: migrate: %v", domain.ErrIntegrity, err)
	}
	return nil
}

// Write returns the single-writer handle.
func (d *DB) Write() *sqlx.DB { return d.write }

// Read returns the pooled read handle.
func (d *DB) Read() *sqlx.DB { return d.read }

// Close closes both sides.
func (d *DB) Close() error {
	rerr := d.read.Close()
	werr := d.write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Ping verifies both connections.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.write.PingContext(ctx); err != nil {
		return err
	}
	return d.read.PingContext(ctx)
}

// TimeLayout is the ISO-8601 UTC format used across the store's
// coordination columns. Fixed-width fractional seconds keep lexicographic
// ordering identical to chronological ordering, which the heartbeat
// cutoff comparison relies on.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// NowUTC renders the current instant in the store's timestamp format.
func NowUTC() string {
	return time.Now().UTC().Format(TimeLayout)
}

// FormatTime renders any time in the store's timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
