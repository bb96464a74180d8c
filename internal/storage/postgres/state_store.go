package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

const stateColumns = `sync_id, tenant_id, usuario_id, advogado_id, tribunal_sigla, oab, cliente_nome,
	mode, status, synced_count, created_count, updated_count, processos_numeros,
	captcha_id, captcha_image, error, queue_job_id, created_at, started_at, finished_at, updated_at`

const (
	expireStaleSQL = `
		UPDATE sync_states
		SET status = 'FAILED', error = $1, captcha_id = NULL, captcha_image = NULL,
			finished_at = $2, updated_at = $2
		WHERE tenant_id = $3 AND usuario_id = $4
			AND status NOT IN ('SUCCESS', 'FAILED')
			AND updated_at < $5;
	`
	insertStateSQL = `
		INSERT INTO sync_states (` + stateColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT DO NOTHING;
	`
	selectActiveSQL = `
		SELECT ` + stateColumns + `
		FROM sync_states
		WHERE tenant_id = $1 AND usuario_id = $2 AND status NOT IN ('SUCCESS', 'FAILED')
		LIMIT 1;
	`
	upsertLatestSQL = `
		INSERT INTO sync_latest (tenant_id, usuario_id, sync_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, usuario_id) DO UPDATE SET sync_id = EXCLUDED.sync_id;
	`
	pruneHistorySQL = `
		DELETE FROM sync_states
		WHERE sync_id IN (
			SELECT sync_id FROM sync_states
			WHERE tenant_id = $1 AND usuario_id = $2
			ORDER BY created_at DESC, sync_id DESC
			OFFSET $3
		) AND status IN ('SUCCESS', 'FAILED');
	`

	selectStateSQL = `SELECT ` + stateColumns + ` FROM sync_states WHERE sync_id = $1;`
	lockStateSQL   = `SELECT ` + stateColumns + ` FROM sync_states WHERE sync_id = $1 FOR UPDATE;`

	selectLatestSQL = `
		SELECT ` + stateColumns + `
		FROM sync_states
		WHERE sync_id = (
			SELECT sync_id FROM sync_latest WHERE tenant_id = $1 AND usuario_id = $2
		);
	`
	listRecentSQL = `
		SELECT ` + stateColumns + `
		FROM sync_states
		WHERE tenant_id = $1 AND usuario_id = $2
		ORDER BY created_at DESC, sync_id DESC
		LIMIT $3;
	`
	updateStateSQL = `
		UPDATE sync_states
		SET advogado_id = $2, mode = $3, status = $4, synced_count = $5, created_count = $6,
			updated_count = $7, processos_numeros = $8, captcha_id = $9, captcha_image = $10,
			error = $11, queue_job_id = $12, started_at = $13, finished_at = $14, updated_at = $15
		WHERE sync_id = $1;
	`
)

// StateStore implements store.SyncStateStore on Postgres. The partial unique
// index sync_states_one_active enforces one active sync per owner and
// sync_latest is maintained in the same transaction as every insert.
type StateStore struct {
	db DB
}

var _ store.SyncStateStore = (*StateStore)(nil)

// NewStateStore wraps a pool (or a pgxmock pool in tests).
func NewStateStore(db DB) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &StateStore{db: db}, nil
}

// Create expires stale active syncs, then inserts state unless an active one remains.
func (s *StateStore) Create(ctx context.Context, state capture.SyncState, staleBefore time.Time) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		if !staleBefore.IsZero() {
			if _, err := tx.Exec(ctx, expireStaleSQL,
				store.ExpiredMessage, state.CreatedAt, state.TenantID, state.UsuarioID, staleBefore,
			); err != nil {
				return fmt.Errorf("failed to expire stale syncs: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, insertStateSQL, insertArgs(state)...)
		if err != nil {
			return fmt.Errorf("failed to insert sync state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			active, err := scanState(tx.QueryRow(ctx, selectActiveSQL, state.TenantID, state.UsuarioID))
			if err != nil {
				return fmt.Errorf("failed to insert sync state %s: %w", state.SyncID, notFound(err))
			}
			return &store.ActiveSyncError{State: active}
		}
		if _, err := tx.Exec(ctx, upsertLatestSQL, state.TenantID, state.UsuarioID, state.SyncID); err != nil {
			return fmt.Errorf("failed to update latest index: %w", err)
		}
		if _, err := tx.Exec(ctx, pruneHistorySQL, state.TenantID, state.UsuarioID, store.MaxHistoryItems); err != nil {
			return fmt.Errorf("failed to prune sync history: %w", err)
		}
		return nil
	})
}

// Get loads a state by ID.
func (s *StateStore) Get(ctx context.Context, syncID string) (capture.SyncState, error) {
	state, err := scanState(s.db.QueryRow(ctx, selectStateSQL, syncID))
	if err != nil {
		return capture.SyncState{}, fmt.Errorf("failed to get sync state: %w", notFound(err))
	}
	return state, nil
}

// Latest resolves the owner's latest state through sync_latest.
func (s *StateStore) Latest(ctx context.Context, tenantID, usuarioID string) (capture.SyncState, error) {
	state, err := scanState(s.db.QueryRow(ctx, selectLatestSQL, tenantID, usuarioID))
	if err != nil {
		return capture.SyncState{}, fmt.Errorf("failed to get latest sync state: %w", notFound(err))
	}
	return state, nil
}

// Update locks the row, applies fn and writes the result back.
func (s *StateStore) Update(ctx context.Context, syncID string, fn store.UpdateFunc) (capture.SyncState, error) {
	var next capture.SyncState
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		current, err := scanState(tx.QueryRow(ctx, lockStateSQL, syncID))
		if err != nil {
			return fmt.Errorf("failed to lock sync state: %w", notFound(err))
		}
		next, err = fn(current)
		if err != nil {
			return err
		}
		if next.SyncID != current.SyncID || next.TenantID != current.TenantID || next.UsuarioID != current.UsuarioID {
			return fmt.Errorf("update must not change sync identity")
		}
		if _, err := tx.Exec(ctx, updateStateSQL, updateArgs(next)...); err != nil {
			return fmt.Errorf("failed to update sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return capture.SyncState{}, err
	}
	return next, nil
}

// ListRecent returns the owner's states, newest first.
func (s *StateStore) ListRecent(ctx context.Context, tenantID, usuarioID string, limit int) ([]capture.SyncState, error) {
	if limit <= 0 || limit > store.MaxHistoryItems {
		limit = store.MaxHistoryItems
	}
	rows, err := s.db.Query(ctx, listRecentSQL, tenantID, usuarioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer rows.Close()

	var out []capture.SyncState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync states: %w", err)
	}
	return out, nil
}

func captchaColumns(state capture.SyncState) (*string, *string) {
	switch p := state.Phase.(type) {
	case capture.WaitingCaptcha:
		return nullable(p.CaptchaID), nullable(p.CaptchaImage)
	case capture.Queued:
		return nullable(p.AnsweredCaptchaID), nil
	default:
		return nil, nil
	}
}

func numbers(state capture.SyncState) []string {
	if state.Counters.ProcessosNumeros == nil {
		return []string{}
	}
	return state.Counters.ProcessosNumeros
}

func insertArgs(state capture.SyncState) []any {
	captchaID, captchaImage := captchaColumns(state)
	return []any{
		state.SyncID,
		state.TenantID,
		state.UsuarioID,
		state.AdvogadoID,
		state.TribunalSigla,
		state.OAB,
		state.ClienteNome,
		string(state.Mode),
		string(state.Status()),
		state.Counters.Synced,
		state.Counters.Created,
		state.Counters.Updated,
		numbers(state),
		captchaID,
		captchaImage,
		state.Error,
		state.QueueJobID,
		state.CreatedAt,
		state.StartedAt,
		state.FinishedAt,
		state.UpdatedAt,
	}
}

func updateArgs(state capture.SyncState) []any {
	captchaID, captchaImage := captchaColumns(state)
	return []any{
		state.SyncID,
		state.AdvogadoID,
		string(state.Mode),
		string(state.Status()),
		state.Counters.Synced,
		state.Counters.Created,
		state.Counters.Updated,
		numbers(state),
		captchaID,
		captchaImage,
		state.Error,
		state.QueueJobID,
		state.StartedAt,
		state.FinishedAt,
		state.UpdatedAt,
	}
}

func scanState(row scanner) (capture.SyncState, error) {
	var (
		state                   capture.SyncState
		mode, status            string
		captchaID, captchaImage *string
	)
	err := row.Scan(
		&state.SyncID,
		&state.TenantID,
		&state.UsuarioID,
		&state.AdvogadoID,
		&state.TribunalSigla,
		&state.OAB,
		&state.ClienteNome,
		&mode,
		&status,
		&state.Counters.Synced,
		&state.Counters.Created,
		&state.Counters.Updated,
		&state.Counters.ProcessosNumeros,
		&captchaID,
		&captchaImage,
		&state.Error,
		&state.QueueJobID,
		&state.CreatedAt,
		&state.StartedAt,
		&state.FinishedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return capture.SyncState{}, err
	}
	phase, err := capture.PhaseFor(capture.Status(status), deref(captchaID), deref(captchaImage))
	if err != nil {
		return capture.SyncState{}, err
	}
	state.Mode = capture.Mode(mode)
	state.Phase = phase
	if state.Counters.ProcessosNumeros == nil {
		state.Counters.ProcessosNumeros = []string{}
	}
	return state, nil
}
