package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema creates every table the service touches. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_states (
	sync_id           TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	usuario_id        TEXT NOT NULL,
	advogado_id       TEXT NOT NULL DEFAULT '',
	tribunal_sigla    TEXT NOT NULL,
	oab               TEXT NOT NULL,
	cliente_nome      TEXT NOT NULL DEFAULT '',
	mode              TEXT NOT NULL,
	status            TEXT NOT NULL,
	synced_count      INTEGER NOT NULL DEFAULT 0,
	created_count     INTEGER NOT NULL DEFAULT 0,
	updated_count     INTEGER NOT NULL DEFAULT 0,
	processos_numeros TEXT[] NOT NULL DEFAULT '{}',
	captcha_id        TEXT,
	captcha_image     TEXT,
	error             TEXT NOT NULL DEFAULT '',
	queue_job_id      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	finished_at       TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sync_states_one_active
	ON sync_states (tenant_id, usuario_id)
	WHERE status NOT IN ('SUCCESS', 'FAILED')`,
	`CREATE INDEX IF NOT EXISTS sync_states_owner_created
	ON sync_states (tenant_id, usuario_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_latest (
	tenant_id  TEXT NOT NULL,
	usuario_id TEXT NOT NULL,
	sync_id    TEXT NOT NULL REFERENCES sync_states (sync_id) ON DELETE CASCADE,
	PRIMARY KEY (tenant_id, usuario_id)
)`,
	`CREATE TABLE IF NOT EXISTS sync_audit (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	usuario_id  TEXT NOT NULL,
	sync_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	synced      INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS advogados (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	usuario_id TEXT NOT NULL,
	oab_numero TEXT NOT NULL DEFAULT '',
	oab_uf     TEXT NOT NULL DEFAULT '',
	UNIQUE (tenant_id, usuario_id)
)`,
	`CREATE TABLE IF NOT EXISTS tribunais (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT,
	nome       TEXT NOT NULL,
	sigla      TEXT NOT NULL DEFAULT '',
	uf         TEXT NOT NULL DEFAULT '',
	esfera     TEXT NOT NULL DEFAULT '',
	site_url   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS clientes (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	nome        TEXT NOT NULL,
	tipo_pessoa TEXT NOT NULL,
	documento   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS clientes_tenant_nome ON clientes (tenant_id, lower(nome))`,
	`CREATE TABLE IF NOT EXISTS processos (
	id                       TEXT PRIMARY KEY,
	tenant_id                TEXT NOT NULL,
	numero                   TEXT NOT NULL,
	numero_cnj               TEXT NOT NULL DEFAULT '',
	titulo                   TEXT NOT NULL DEFAULT '',
	descricao                TEXT NOT NULL DEFAULT '',
	classe                   TEXT NOT NULL DEFAULT '',
	comarca                  TEXT NOT NULL DEFAULT '',
	vara                     TEXT NOT NULL DEFAULT '',
	data_distribuicao        TIMESTAMPTZ,
	valor_causa              DOUBLE PRECISION,
	status                   TEXT NOT NULL,
	tribunal_id              TEXT REFERENCES tribunais (id),
	cliente_id               TEXT REFERENCES clientes (id),
	advogado_responsavel_id  TEXT REFERENCES advogados (id),
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, numero)
)`,
	`CREATE TABLE IF NOT EXISTS processo_partes (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	processo_id    TEXT NOT NULL REFERENCES processos (id) ON DELETE CASCADE,
	tipo_polo      TEXT NOT NULL,
	nome           TEXT NOT NULL,
	documento      TEXT NOT NULL DEFAULT '',
	tipo_documento TEXT NOT NULL DEFAULT '',
	cliente_id     TEXT REFERENCES clientes (id)
)`,
	`CREATE TABLE IF NOT EXISTS advogado_clientes (
	tenant_id      TEXT NOT NULL,
	advogado_id    TEXT NOT NULL REFERENCES advogados (id),
	cliente_id     TEXT NOT NULL REFERENCES clientes (id),
	relacionamento TEXT NOT NULL,
	PRIMARY KEY (advogado_id, cliente_id)
)`,
}

// Migrate applies Schema in a single transaction.
func Migrate(ctx context.Context, db DB) error {
	return inTx(ctx, db, func(tx pgx.Tx) error {
		for i, stmt := range Schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
