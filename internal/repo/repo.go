package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"iscrizioni/internal/model"
	"iscrizioni/pkg/tz"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrDuplicateRegistration = errors.New("duplicate registration")
)

// TimeLayout is how civil timestamps are stored (Italian local time).
const TimeLayout = "2006-01-02 15:04:05"

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetActiveEvent(ctx context.Context) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	CreateRegistrationTx(ctx context.Context, reg *model.Registration) (int64, error)
	GetRegistrationByID(ctx context.Context, id int64) (*model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID int64) ([]model.Registration, error)
	CountRegistrations(ctx context.Context, eventID int64) (int, error)
	DeleteRegistration(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*model.Stats, error)
	InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
	Close() error
}

type repository struct {
	db  *sql.DB
	log *zerolog.Logger
}

// Open opens (or creates) the SQLite database at path with WAL journaling,
// foreign keys and a 30 s busy timeout, so concurrent writers serialize at
// the storage engine.
func Open(path string, log *zerolog.Logger) (Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) Close() error {
	return r.db.Close()
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql")
}

func (r *repository) applyMigrations(migrationsDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

// CreateEvent inserts a new active event. The single-active invariant is
// enforced here: every other event is deactivated in the same transaction.
func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE events SET active = 0 WHERE active = 1`); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to deactivate events: %w", err)
	}

	createdAt := tz.Now().Format(TimeLayout)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (name, description, price, event_date, created_at, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, e.Name, e.Description, e.Price, nullable(e.EventDate), createdAt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	e.ID = int(id)
	e.CreatedAt = createdAt
	e.Active = true
	return id, nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, COALESCE(event_date, ''), created_at, active
		FROM events WHERE id = ?
	`, id)
	return scanEvent(row)
}

// GetActiveEvent returns the most recently created active event.
func (r *repository) GetActiveEvent(ctx context.Context) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, COALESCE(event_date, ''), created_at, active
		FROM events WHERE active = 1
		ORDER BY created_at DESC LIMIT 1
	`)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Price, &e.EventDate, &e.CreatedAt, &e.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return &e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.description, e.price, COALESCE(e.event_date, ''), e.created_at, e.active,
		       (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id) AS registered
		FROM events e
		ORDER BY e.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Price, &e.EventDate, &e.CreatedAt, &e.Active, &e.Registered); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateRegistrationTx admits one registration inside a single transaction:
// active-event check, duplicate probe, insert. The UNIQUE(phone, event_id)
// constraint backstops the probe; a violation is reported as
// ErrDuplicateRegistration, never as an internal error.
func (r *repository) CreateRegistrationTx(ctx context.Context, reg *model.Registration) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var eventID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM events WHERE id = ? AND active = 1
	`, reg.EventID).Scan(&eventID)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, fmt.Errorf("failed to check event: %w", err)
	}

	// Stored values may predate normalization, so common punctuation is
	// stripped from them before comparing.
	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM registrations
		WHERE event_id = ?
		  AND replace(replace(replace(replace(replace(replace(phone, ' ', ''), '+', ''), '-', ''), '.', ''), '(', ''), ')', '') = ?
	`, reg.EventID, reg.Phone).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return 0, ErrDuplicateRegistration
	}

	createdAt := tz.Now().Format(TimeLayout)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO registrations (event_id, first_name, last_name, phone, birth_date, birth_place, age_bracket, arrival_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reg.EventID, reg.FirstName, reg.LastName, reg.Phone,
		nullable(reg.BirthDate), nullable(reg.BirthPlace),
		nullable(reg.AgeBracket), nullable(reg.ArrivalTime), createdAt)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return 0, ErrDuplicateRegistration
		}
		return 0, fmt.Errorf("failed to insert registration: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to read registration id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	reg.ID = int(id)
	reg.CreatedAt = createdAt
	return id, nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id int64) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_id, first_name, last_name, phone,
		       COALESCE(birth_date, ''), COALESCE(birth_place, ''),
		       COALESCE(age_bracket, ''), COALESCE(arrival_time, ''), created_at
		FROM registrations WHERE id = ?
	`, id)

	var reg model.Registration
	if err := row.Scan(
		&reg.ID, &reg.EventID, &reg.FirstName, &reg.LastName, &reg.Phone,
		&reg.BirthDate, &reg.BirthPlace, &reg.AgeBracket, &reg.ArrivalTime, &reg.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}
	return &reg, nil
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID int64) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, first_name, last_name, phone,
		       COALESCE(birth_date, ''), COALESCE(birth_place, ''),
		       COALESCE(age_bracket, ''), COALESCE(arrival_time, ''), created_at
		FROM registrations
		WHERE event_id = ?
		ORDER BY last_name, first_name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(
			&reg.ID, &reg.EventID, &reg.FirstName, &reg.LastName, &reg.Phone,
			&reg.BirthDate, &reg.BirthPlace, &reg.AgeBracket, &reg.ArrivalTime, &reg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *repository) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations WHERE event_id = ?
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

func (r *repository) DeleteRegistration(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

func (r *repository) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&stats.TotalRegistrations); err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}

	var err error
	stats.PerEvent, err = r.labelCounts(ctx, `
		SELECT e.name, COUNT(r.id)
		FROM events e LEFT JOIN registrations r ON r.event_id = e.id
		GROUP BY e.id
		ORDER BY e.created_at DESC
	`)
	if err != nil {
		return nil, err
	}

	stats.PerDay, err = r.labelCounts(ctx, `
		SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		FROM registrations
		GROUP BY day
		ORDER BY day
	`)
	if err != nil {
		return nil, err
	}

	stats.PerAgeBracket, err = r.labelCounts(ctx, `
		SELECT age_bracket, COUNT(*)
		FROM registrations
		WHERE age_bracket IS NOT NULL
		GROUP BY age_bracket
		ORDER BY age_bracket
	`)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *repository) labelCounts(ctx context.Context, query string) ([]model.LabelCount, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var out []model.LabelCount
	for rows.Next() {
		var lc model.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (r *repository) InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	createdAt := entry.CreatedAt
	if createdAt == "" {
		createdAt = tz.Now().Format(TimeLayout)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, event_id, registration_id, phone, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Action, entry.EventID, entry.RegistrationID, entry.Phone, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
