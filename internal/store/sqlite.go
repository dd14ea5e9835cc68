package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dcastano/inspectord/internal/domain"
	"github.com/dcastano/inspectord/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		aborted INTEGER NOT NULL DEFAULT 0,
		abort_reason TEXT,
		geo_mismatch_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key TEXT NOT NULL,
		image_hash TEXT NOT NULL,
		photo_slot TEXT NOT NULL,
		raw BLOB,
		analysis_json TEXT NOT NULL,
		fraud_flags_json TEXT NOT NULL,
		review_flags_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(session_key, image_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_session_images_key ON session_images(session_key);

	CREATE TABLE IF NOT EXISTS session_flags (
		session_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		flag TEXT NOT NULL,
		UNIQUE(session_key, kind, flag)
	);

	CREATE TABLE IF NOT EXISTS session_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key TEXT NOT NULL,
		note TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inspections (
		session_key TEXT PRIMARY KEY,
		inspection_id TEXT NOT NULL,
		plate TEXT NOT NULL,
		status TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		plate TEXT PRIMARY KEY,
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		year INTEGER NOT NULL,
		color TEXT NOT NULL,
		vin TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drivers (
		driver_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		license_category TEXT NOT NULL,
		years_experience INTEGER NOT NULL,
		risk_factor REAL NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execRetry runs a write statement, retrying on SQLite lock contention
// with exponential backoff.
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var res sql.Result
	var err error
	for i := 0; i < maxRetries; i++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Write hit lock contention, retrying", "attempt", i+1, "delay", delay)
		time.Sleep(delay)
	}
	return nil, err
}

// EnsureSession creates the session row if it does not exist yet.
func (s *SQLiteStore) EnsureSession(ctx context.Context, key string) error {
	query := `
	INSERT INTO sessions (session_key, aborted, abort_reason, geo_mismatch_count, created_at)
	VALUES (?, 0, NULL, 0, ?)
	ON CONFLICT(session_key) DO NOTHING`

	if _, err := s.execRetry(ctx, query, key, time.Now().Unix()); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// GetSession returns the session, or nil when it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	query := `
		SELECT session_key, aborted, abort_reason, geo_mismatch_count, created_at
		FROM sessions WHERE session_key = ?`

	row := s.db.QueryRowContext(ctx, query, key)

	var sess domain.Session
	var aborted int
	var reason sql.NullString
	var createdAt int64

	err := row.Scan(&sess.Key, &aborted, &reason, &sess.GeoMismatchCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Aborted = aborted != 0
	sess.AbortReason = reason.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	return &sess, nil
}

// SetAbort marks the session aborted, keeping the first recorded reason.
func (s *SQLiteStore) SetAbort(ctx context.Context, key, reason string) error {
	query := `UPDATE sessions SET aborted = 1, abort_reason = ? WHERE session_key = ? AND aborted = 0`
	if _, err := s.execRetry(ctx, query, reason, key); err != nil {
		return fmt.Errorf("set abort: %w", err)
	}
	return nil
}

// IncrementGeoMismatch bumps the counter and returns the new value from a
// single transaction so concurrent callers see a monotonic sequence.
func (s *SQLiteStore) IncrementGeoMismatch(ctx context.Context, key string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin geo mismatch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET geo_mismatch_count = geo_mismatch_count + 1 WHERE session_key = ?`, key); err != nil {
		return 0, fmt.Errorf("increment geo mismatch: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT geo_mismatch_count FROM sessions WHERE session_key = ?`, key).Scan(&count); err != nil {
		return 0, fmt.Errorf("read geo mismatch count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit geo mismatch tx: %w", err)
	}
	return count, nil
}

// AppendImage stores one analyzed image, ignoring duplicate hashes.
func (s *SQLiteStore) AppendImage(ctx context.Context, key string, rec *domain.ImageRecord) error {
	analysisJSON, err := json.Marshal(rec.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	fraudJSON, err := json.Marshal(rec.FraudFlags)
	if err != nil {
		return fmt.Errorf("marshal fraud flags: %w", err)
	}
	reviewJSON, err := json.Marshal(rec.ReviewFlags)
	if err != nil {
		return fmt.Errorf("marshal review flags: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO session_images (session_key, image_hash, photo_slot, raw, analysis_json, fraud_flags_json, review_flags_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_key, image_hash) DO NOTHING`

	if _, err := s.execRetry(ctx, query,
		key, rec.Hash, rec.PhotoSlot, rec.Raw,
		string(analysisJSON), string(fraudJSON), string(reviewJSON),
		createdAt.Unix(),
	); err != nil {
		return fmt.Errorf("append image: %w", err)
	}
	return nil
}

// FindImageByHash returns the stored image or nil.
func (s *SQLiteStore) FindImageByHash(ctx context.Context, key, hash string) (*domain.ImageRecord, error) {
	query := `
		SELECT image_hash, photo_slot, raw, analysis_json, fraud_flags_json, review_flags_json, created_at
		FROM session_images WHERE session_key = ? AND image_hash = ?`

	rec, err := scanImage(s.db.QueryRowContext(ctx, query, key, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan image row: %w", err)
	}
	return rec, nil
}

// ListImages returns all images in insertion order.
func (s *SQLiteStore) ListImages(ctx context.Context, key string) ([]domain.ImageRecord, error) {
	query := `
		SELECT image_hash, photo_slot, raw, analysis_json, fraud_flags_json, review_flags_json, created_at
		FROM session_images WHERE session_key = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close image rows", "error", closeErr)
		}
	}()

	var images []domain.ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		images = append(images, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*domain.ImageRecord, error) {
	var rec domain.ImageRecord
	var analysisJSON, fraudJSON, reviewJSON string
	var createdAt int64

	err := row.Scan(&rec.Hash, &rec.PhotoSlot, &rec.Raw,
		&analysisJSON, &fraudJSON, &reviewJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(analysisJSON), &rec.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(fraudJSON), &rec.FraudFlags); err != nil {
		return nil, fmt.Errorf("unmarshal fraud flags: %w", err)
	}
	if err := json.Unmarshal([]byte(reviewJSON), &rec.ReviewFlags); err != nil {
		return nil, fmt.Errorf("unmarshal review flags: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// CountImages returns the number of stored images.
func (s *SQLiteStore) CountImages(ctx context.Context, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_images WHERE session_key = ?`, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

// AddFlag records a flag with set semantics.
func (s *SQLiteStore) AddFlag(ctx context.Context, key string, kind domain.FlagKind, flag string) error {
	query := `INSERT INTO session_flags (session_key, kind, flag) VALUES (?, ?, ?)
		ON CONFLICT(session_key, kind, flag) DO NOTHING`
	if _, err := s.execRetry(ctx, query, key, string(kind), flag); err != nil {
		return fmt.Errorf("add flag: %w", err)
	}
	return nil
}

// ListFlags returns stored flags of one kind, sorted for stable output.
func (s *SQLiteStore) ListFlags(ctx context.Context, key string, kind domain.FlagKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flag FROM session_flags WHERE session_key = ? AND kind = ? ORDER BY flag ASC`,
		key, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flags []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan flag row: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return flags, nil
}

// AddNote appends a free-text note.
func (s *SQLiteStore) AddNote(ctx context.Context, key, note string) error {
	query := `INSERT INTO session_notes (session_key, note, created_at) VALUES (?, ?, ?)`
	if _, err := s.execRetry(ctx, query, key, note, time.Now().Unix()); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	return nil
}

// ListNotes returns all notes in insertion order.
func (s *SQLiteStore) ListNotes(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note FROM session_notes WHERE session_key = ? ORDER BY id ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// ClearSession deletes the session and everything attached to it.
func (s *SQLiteStore) ClearSession(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM session_images WHERE session_key = ?`,
		`DELETE FROM session_flags WHERE session_key = ?`,
		`DELETE FROM session_notes WHERE session_key = ?`,
		`DELETE FROM sessions WHERE session_key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertInspection persists a finalized record keyed by session.
func (s *SQLiteStore) UpsertInspection(ctx context.Context, rec *domain.InspectionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal inspection: %w", err)
	}

	query := `
	INSERT INTO inspections (session_key, inspection_id, plate, status, payload_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_key) DO UPDATE SET
		inspection_id = excluded.inspection_id,
		plate = excluded.plate,
		status = excluded.status,
		payload_json = excluded.payload_json,
		created_at = excluded.created_at`

	if _, err := s.execRetry(ctx, query,
		rec.SessionKey, rec.InspectionID, rec.Plate, rec.Status,
		string(payload), rec.Timestamp.Unix(),
	); err != nil {
		return fmt.Errorf("upsert inspection: %w", err)
	}
	return nil
}

// GetInspection returns the persisted record, or nil when absent.
func (s *SQLiteStore) GetInspection(ctx context.Context, sessionKey string) (*domain.InspectionRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM inspections WHERE session_key = ?`, sessionKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan inspection row: %w", err)
	}

	var rec domain.InspectionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal inspection: %w", err)
	}
	return &rec, nil
}

// GetVehicle returns the vehicle for a plate, or nil when unknown.
func (s *SQLiteStore) GetVehicle(ctx context.Context, plate string) (*domain.Vehicle, error) {
	query := `SELECT plate, brand, model, year, color, vin, created_at FROM vehicles WHERE plate = ?`
	row := s.db.QueryRowContext(ctx, query, plate)

	var v domain.Vehicle
	var createdAt int64
	err := row.Scan(&v.Plate, &v.Brand, &v.Model, &v.Year, &v.Color, &v.VIN, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan vehicle row: %w", err)
	}
	v.CreatedAt = time.Unix(createdAt, 0)
	return &v, nil
}

// UpsertVehicle creates or updates a vehicle record.
func (s *SQLiteStore) UpsertVehicle(ctx context.Context, v *domain.Vehicle) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
	INSERT INTO vehicles (plate, brand, model, year, color, vin, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(plate) DO UPDATE SET
		brand = excluded.brand,
		model = excluded.model,
		year = excluded.year,
		color = excluded.color,
		vin = excluded.vin`

	if _, err := s.execRetry(ctx, query,
		v.Plate, v.Brand, v.Model, v.Year, v.Color, v.VIN, createdAt.Unix()); err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}
	return nil
}

// InsertDriver stores a driver record.
func (s *SQLiteStore) InsertDriver(ctx context.Context, d *domain.Driver) error {
	query := `
	INSERT INTO drivers (driver_id, name, license_category, years_experience, risk_factor)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(driver_id) DO NOTHING`

	if _, err := s.execRetry(ctx, query,
		d.DriverID, d.Name, d.LicenseCategory, d.YearsExperience, d.RiskFactor); err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

// AnyDriver returns an arbitrary driver, or nil when none exist.
func (s *SQLiteStore) AnyDriver(ctx context.Context) (*domain.Driver, error) {
	query := `SELECT driver_id, name, license_category, years_experience, risk_factor
		FROM drivers ORDER BY RANDOM() LIMIT 1`
	row := s.db.QueryRowContext(ctx, query)

	var d domain.Driver
	err := row.Scan(&d.DriverID, &d.Name, &d.LicenseCategory, &d.YearsExperience, &d.RiskFactor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan driver row: %w", err)
	}
	return &d, nil
}
