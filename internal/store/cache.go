// Package store persists budget snapshots and sent alerts in SQLite so a
// restarted process has a last known value to show.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"

	_ "modernc.org/sqlite" // register sqlite driver
)

// KeepNotifications is how many sent alerts are retained, enough to refill the
// daemon's event ring after a restart.
const KeepNotifications = 200

// Dir returns the XDG cache directory for pburn state.
func Dir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "pburn")
}

// DefaultPath returns the full path to the cache database.
func DefaultPath() string {
	return filepath.Join(Dir(), "budget.db")
}

// Cache holds the last known good snapshot and recently sent alerts.
type Cache struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db, keep: KeepNotifications}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveSnapshot replaces the stored snapshot with s. Only the latest one is kept.
func (c *Cache) SaveSnapshot(s *model.Snapshot) error {
	if s == nil {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO snapshots (fetched_at, overall_status, saved_at) VALUES (?, ?, ?)`,
		formatTime(s.FetchedAt()), s.OverallStatus().String(), formatTime(time.Now()))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, r := range s.Readings() {
		_, err = tx.Exec(`INSERT INTO snapshot_buckets (snapshot_id, kind, used_usd, total_usd, level)
			VALUES (?, ?, ?, ?, ?)`,
			id, string(r.Bucket.Kind), r.Bucket.Used, r.Bucket.Total, r.Level.String())
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM snapshots WHERE id < ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// LastSnapshot returns the saved snapshot, or nil if there is none.
func (c *Cache) LastSnapshot() (*model.Snapshot, error) {
	var (
		id int64
		ts string
	)
	err := c.db.QueryRow(`SELECT id, fetched_at FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&id, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fetchedAt, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	readings, err := c.readings(id)
	if err != nil {
		return nil, err
	}
	return model.NewSnapshot(fetchedAt, readings), nil
}

func (c *Cache) readings(id int64) ([]model.Reading, error) {
	rows, err := c.db.Query(`SELECT kind, used_usd, total_usd, level FROM snapshot_buckets WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Reading
	for rows.Next() {
		var (
			r     model.Reading
			kind  string
			level string
		)
		if err := rows.Scan(&kind, &r.Bucket.Used, &r.Bucket.Total, &level); err != nil {
			return nil, err
		}
		r.Bucket.Kind = model.BucketKind(kind)
		if err := r.Level.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NotificationRecord is a sent alert as stored on disk.
type NotificationRecord struct {
	ID      string           `json:"id"`
	Kind    model.BucketKind `json:"bucket_kind"`
	Level   model.Level      `json:"level"`
	At      time.Time        `json:"at"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
}

// SaveNotification records a delivered alert.
func (c *Cache) SaveNotification(n monitor.Notification) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO notifications (id, kind, level, sent_at, title, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Kind), n.Level.String(), formatTime(n.At), n.Title, n.Message)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`DELETE FROM notifications WHERE id NOT IN
		(SELECT id FROM notifications ORDER BY sent_at DESC LIMIT ?)`, c.keep)
	return err
}

// RecentNotifications returns up to limit alerts, oldest first.
func (c *Cache) RecentNotifications(limit int) ([]NotificationRecord, error) {
	rows, err := c.db.Query(`SELECT id, kind, level, sent_at, title, message FROM
		(SELECT * FROM notifications ORDER BY sent_at DESC LIMIT ?) ORDER BY sent_at ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []NotificationRecord
	for rows.Next() {
		var (
			rec                 NotificationRecord
			kind, level, sentAt string
		)
		if err := rows.Scan(&rec.ID, &kind, &level, &sentAt, &rec.Title, &rec.Message); err != nil {
			return nil, err
		}
		rec.Kind = model.BucketKind(kind)
		if err := rec.Level.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
		if rec.At, err = parseTime(sentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Record converts a live notification to its stored form.
func Record(n monitor.Notification) NotificationRecord {
	return NotificationRecord{ID: n.ID, Kind: n.Kind, Level: n.Level, At: n.At, Title: n.Title, Message: n.Message}
}

// timeLayout is fixed-width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Join(fmt.Errorf("bad timestamp %q", s), err)
	}
	return t, nil
}
