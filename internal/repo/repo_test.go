package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iscrizioni/internal/model"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	log := zerolog.Nop()
	r, err := Open(filepath.Join(t.TempDir(), "test.db"), &log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.MigrateUp(filepath.Join("..", "..", "migrations", "sqlite")))
	return r
}

func createTestEvent(t *testing.T, r Repository, name string) int64 {
	t.Helper()
	id, err := r.CreateEvent(context.Background(), &model.Event{Name: name, Price: 10})
	require.NoError(t, err)
	return id
}

func serataRegistration(eventID int64, phone string) *model.Registration {
	return &model.Registration{
		EventID:     int(eventID),
		FirstName:   "Mario",
		LastName:    "Rossi",
		Phone:       phone,
		AgeBracket:  "18-21",
		ArrivalTime: "20:30",
	}
}

func TestOpenConfiguresConnection(t *testing.T) {
	r := newTestRepo(t)
	db := r.(*repository).db

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 30000, busyTimeout)
}

func TestCreateEventKeepsSingleActive(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := createTestEvent(t, r, "Sagra di primavera")
	second := createTestEvent(t, r, "Sagra d'estate")

	events, err := r.GetAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	activeCount := 0
	for _, e := range events {
		if e.Active {
			activeCount++
			assert.Equal(t, int(second), e.ID)
		}
	}
	assert.Equal(t, 1, activeCount)

	active, err := r.GetActiveEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int(second), active.ID)

	old, err := r.GetEventByID(ctx, first)
	require.NoError(t, err)
	assert.False(t, old.Active)
}

func TestGetActiveEventWhenNoneExists(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.GetActiveEvent(context.Background())
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateRegistrationAndDuplicate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eventID := createTestEvent(t, r, "Sagra")

	id, err := r.CreateRegistrationTx(ctx, serataRegistration(eventID, "3331234567"))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = r.CreateRegistrationTx(ctx, serataRegistration(eventID, "3331234567"))
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	_, err = r.CreateRegistrationTx(ctx, serataRegistration(eventID, "3339999999"))
	require.NoError(t, err)

	count, err := r.CountRegistrations(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCreateRegistrationRejectsInactiveEvent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := createTestEvent(t, r, "Vecchia sagra")
	createTestEvent(t, r, "Nuova sagra")

	_, err := r.CreateRegistrationTx(ctx, serataRegistration(first, "3331234567"))
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = r.CreateRegistrationTx(ctx, serataRegistration(9999, "3331234567"))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestDuplicateDetectedAgainstPunctuatedStoredPhone(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eventID := createTestEvent(t, r, "Sagra")

	// Rows written before phone normalization was introduced may still
	// carry punctuation.
	raw := r.(*repository)
	_, err := raw.db.ExecContext(ctx, `
		INSERT INTO registrations (event_id, first_name, last_name, phone, age_bracket, arrival_time, created_at)
		VALUES (?, 'Luigi', 'Verdi', '+39 333-123.4567', '22-35', '21:00', '2026-07-01 10:00:00')
	`, eventID)
	require.NoError(t, err)

	_, err = r.CreateRegistrationTx(ctx, serataRegistration(eventID, "393331234567"))
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestSamePhoneDifferentEvents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := createTestEvent(t, r, "Sagra 2025")
	_, err := r.CreateRegistrationTx(ctx, serataRegistration(first, "3331234567"))
	require.NoError(t, err)

	second := createTestEvent(t, r, "Sagra 2026")
	_, err = r.CreateRegistrationTx(ctx, serataRegistration(second, "3331234567"))
	assert.NoError(t, err)
}

func TestGetRegistrationsOrderedByName(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eventID := createTestEvent(t, r, "Sagra")

	for _, p := range []struct{ first, last, phone string }{
		{"Carla", "Bianchi", "3330000001"},
		{"Anna", "Bianchi", "3330000002"},
		{"Mario", "Albano", "3330000003"},
	} {
		reg := serataRegistration(eventID, p.phone)
		reg.FirstName, reg.LastName = p.first, p.last
		_, err := r.CreateRegistrationTx(ctx, reg)
		require.NoError(t, err)
	}

	regs, err := r.GetRegistrationsByEventID(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, "Albano", regs[0].LastName)
	assert.Equal(t, "Anna", regs[1].FirstName)
	assert.Equal(t, "Carla", regs[2].FirstName)
}

func TestDeleteRegistration(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eventID := createTestEvent(t, r, "Sagra")

	id, err := r.CreateRegistrationTx(ctx, serataRegistration(eventID, "3331234567"))
	require.NoError(t, err)

	require.NoError(t, r.DeleteRegistration(ctx, id))

	_, err = r.GetRegistrationByID(ctx, id)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)

	err = r.DeleteRegistration(ctx, id)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)

	count, err := r.CountRegistrations(ctx, eventID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStats(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eventID := createTestEvent(t, r, "Sagra")

	first := serataRegistration(eventID, "3331234567")
	_, err := r.CreateRegistrationTx(ctx, first)
	require.NoError(t, err)

	second := serataRegistration(eventID, "3339999999")
	second.AgeBracket = "22-35"
	_, err = r.CreateRegistrationTx(ctx, second)
	require.NoError(t, err)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEvents)
	assert.Equal(t, 2, stats.TotalRegistrations)
	require.Len(t, stats.PerEvent, 1)
	assert.Equal(t, "Sagra", stats.PerEvent[0].Label)
	assert.Equal(t, 2, stats.PerEvent[0].Count)
	require.Len(t, stats.PerDay, 1)
	assert.Equal(t, 2, stats.PerDay[0].Count)
	require.Len(t, stats.PerAgeBracket, 2)
}

func TestInsertAuditEntry(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	err := r.InsertAuditEntry(ctx, &model.AuditEntry{
		Action:         "registered",
		EventID:        1,
		RegistrationID: 7,
		Phone:          "3331234567",
	})
	require.NoError(t, err)

	raw := r.(*repository)
	var count int
	require.NoError(t, raw.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count))
	assert.Equal(t, 1, count)
}
