package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

var stateColumnNames = []string{
	"sync_id", "tenant_id", "usuario_id", "advogado_id", "tribunal_sigla", "oab", "cliente_nome",
	"mode", "status", "synced_count", "created_count", "updated_count", "processos_numeros",
	"captcha_id", "captcha_image", "error", "queue_job_id", "created_at", "started_at", "finished_at", "updated_at",
}

var now = time.Unix(1700000000, 0).UTC()

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func stateRows(syncID, status string, captchaID *string) *pgxmock.Rows {
	return pgxmock.NewRows(stateColumnNames).AddRow(
		syncID, "tenant-1", "user-1", "", "TJBA", "12345BA", "",
		"INITIAL", status, 0, 0, 0, []string{},
		captchaID, (*string)(nil), "", "job-1", now, (*time.Time)(nil), (*time.Time)(nil), now,
	)
}

func newSync(id string) capture.SyncState {
	return capture.NewSyncState(capture.NewSyncParams{
		SyncID:        id,
		TenantID:      "tenant-1",
		UsuarioID:     "user-1",
		TribunalSigla: "TJBA",
		OAB:           "12345BA",
	}, now)
}

func TestStateStoreCreateMaintainsLatestIndex(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	staleBefore := now.Add(-30 * time.Minute)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sync_states").
		WithArgs(store.ExpiredMessage, now, "tenant-1", "user-1", staleBefore).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO sync_states").
		WithArgs(anyArgs(21)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sync_latest").
		WithArgs("tenant-1", "user-1", "sync-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM sync_states").
		WithArgs("tenant-1", "user-1", store.MaxHistoryItems).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), newSync("sync-1"), staleBefore))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreCreateReturnsActiveSync(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	captchaID := "c1"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sync_states").
		WithArgs(anyArgs(21)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT (.+) FROM sync_states").
		WithArgs("tenant-1", "user-1").
		WillReturnRows(stateRows("sync-0", "WAITING_CAPTCHA", &captchaID))
	mock.ExpectRollback()

	err = s.Create(context.Background(), newSync("sync-1"), time.Time{})
	var active *store.ActiveSyncError
	require.True(t, errors.As(err, &active))
	assert.Equal(t, "sync-0", active.State.SyncID)
	w, ok := active.State.Captcha()
	require.True(t, ok)
	assert.Equal(t, "c1", w.CaptchaID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreGetMapsNoRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM sync_states WHERE sync_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreUpdateLocksRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("sync-1").
		WillReturnRows(stateRows("sync-1", "QUEUED", nil))
	mock.ExpectExec("UPDATE sync_states").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	next, err := s.Update(context.Background(), "sync-1", func(cur capture.SyncState) (capture.SyncState, error) {
		return cur.MarkRunning("job-2", now.Add(time.Second)), nil
	})
	require.NoError(t, err)
	assert.Equal(t, capture.StatusRunning, next.Status())
	assert.Equal(t, "job-2", next.QueueJobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreUpdateAbortsOnGuardError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("sync-1").
		WillReturnRows(stateRows("sync-1", "RUNNING", nil))
	mock.ExpectRollback()

	_, err = s.Update(context.Background(), "sync-1", func(cur capture.SyncState) (capture.SyncState, error) {
		return cur, capture.CanResolveCaptcha(cur, "").Error()
	})
	require.ErrorIs(t, err, capture.ErrNotWaitingForCaptcha)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreListRecent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewStateStore(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows(stateColumnNames).
		AddRow("sync-2", "tenant-1", "user-1", "", "TJBA", "12345BA", "",
			"INITIAL", "SUCCESS", 2, 1, 1, []string{"1", "2"},
			(*string)(nil), (*string)(nil), "", "job-2", now, &now, &now, now).
		AddRow("sync-1", "tenant-1", "user-1", "", "TJBA", "12345BA", "",
			"INITIAL", "FAILED", 0, 0, 0, []string{},
			(*string)(nil), (*string)(nil), "boom", "job-1", now, &now, &now, now)
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("tenant-1", "user-1", 5).
		WillReturnRows(rows)

	got, err := s.ListRecent(context.Background(), "tenant-1", "user-1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, capture.StatusSuccess, got[0].Status())
	assert.Equal(t, []string{"1", "2"}, got[0].Counters.ProcessosNumeros)
	assert.Equal(t, "boom", got[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}
