package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/formationdesk/checkin/schema"
)

const (
	journalLogPrefix = "journal"

	DefaultRecentLimit = 50
	MaxRecentLimit     = 500

	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var ErrNotInitialized = errors.New("journal not initialized")

// SubmissionJournal - persistent record of submission attempts
type SubmissionJournal interface {
	Recorder
	Pinger
	Closer
}

// Recorder - write and read submission records
type Recorder interface {
	Record(ctx context.Context, r schema.SubmissionRecord) error
	Recent(ctx context.Context, limit int) ([]schema.SubmissionRecord, error)
}

// Pinger - ping database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer - close db connection
type Closer interface {
	Close() error
}

// Journal keeps submission records in a SQLite database.
type Journal struct {
	db *sql.DB
}

// Open - open the journal database at path, creating its directory as needed
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Journal{db: db}, nil
}

// InitSchema - create the submissions table if missing
func (j *Journal) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			employee_id TEXT,
			formation_id TEXT,
			device_hash TEXT,
			latitude REAL,
			longitude REAL,
			accuracy REAL,
			outcome TEXT NOT NULL,
			reason TEXT,
			message TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Record - insert a submission record
func (j *Journal) Record(ctx context.Context, r schema.SubmissionRecord) error {
	if j == nil || j.db == nil {
		return ErrNotInitialized
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var lat, lng, acc sql.NullFloat64
	if r.Location != nil {
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
		acc = sql.NullFloat64{Float64: r.Location.Accuracy, Valid: true}
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO submissions (id, action, employee_id, formation_id, device_hash, latitude, longitude, accuracy, outcome, reason, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Action, r.EmployeeID, r.FormationID, r.DeviceHash, lat, lng, acc,
		string(r.Outcome), r.Reason, r.Message, createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	log.WithField("prefix", journalLogPrefix).Debugf("recorded %s %s: %s", r.Action, r.ID, r.Outcome)
	return nil
}

// Recent - return the latest records, newest first. limit is clamped to MaxRecentLimit, and a
// non-positive limit selects DefaultRecentLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]schema.SubmissionRecord, error) {
	if j == nil || j.db == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, action, employee_id, formation_id, device_hash, latitude, longitude, accuracy, outcome, reason, message, created_at
		FROM submissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	records := make([]schema.SubmissionRecord, 0)
	for rows.Next() {
		var (
			r                           schema.SubmissionRecord
			employeeID, formationID     sql.NullString
			deviceHash, reason, message sql.NullString
			lat, lng, acc               sql.NullFloat64
			outcome, createdAt          string
		)

		if err := rows.Scan(&r.ID, &r.Action, &employeeID, &formationID, &deviceHash, &lat, &lng, &acc,
			&outcome, &reason, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}

		r.EmployeeID = employeeID.String
		r.FormationID = formationID.String
		r.DeviceHash = deviceHash.String
		r.Reason = reason.String
		r.Message = message.String
		r.Outcome = schema.SubmissionOutcome(outcome)
		if lat.Valid && lng.Valid {
			r.Location = &schema.GeoReading{Latitude: lat.Float64, Longitude: lng.Float64, Accuracy: acc.Float64}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		r.CreatedAt = t

		records = append(records, r)
	}

	return records, rows.Err()
}

// Ping - ping the journal database
func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return ErrNotInitialized
	}
	return j.db.PingContext(ctx)
}

// Close - close the journal database
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	log.WithField("prefix", journalLogPrefix).Info("closing journal database")
	return j.db.Close()
}
