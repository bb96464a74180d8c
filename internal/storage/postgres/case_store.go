package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// RelationshipImported labels lawyer-client links created by a capture.
const RelationshipImported = "IMPORTADO_CAPTURA"

const (
	caseColumns = `id, tenant_id, numero, numero_cnj, titulo, descricao, classe, comarca, vara,
		data_distribuicao, valor_causa, status, tribunal_id, cliente_id, advogado_responsavel_id`

	findCaseSQL = `
		SELECT ` + caseColumns + `
		FROM processos
		WHERE tenant_id = $1 AND (numero = $2 OR numero_cnj = $2)
		ORDER BY created_at
		LIMIT 1;
	`
	insertCaseSQL = `
		INSERT INTO processos (` + caseColumns + `, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16);
	`
	updateCaseSQL = `
		UPDATE processos
		SET numero_cnj = $2, descricao = $3, classe = $4, comarca = $5, vara = $6,
			data_distribuicao = $7, valor_causa = $8, status = $9, tribunal_id = $10,
			cliente_id = $11, advogado_responsavel_id = $12, updated_at = $13
		WHERE id = $1;
	`
	findClientSQL = `
		SELECT id, tenant_id, nome, tipo_pessoa, documento
		FROM clientes
		WHERE tenant_id = $1 AND lower(nome) = lower($2)
		ORDER BY created_at
		LIMIT 1;
	`
	getClientSQL = `
		SELECT id, tenant_id, nome, tipo_pessoa, documento
		FROM clientes
		WHERE tenant_id = $1 AND id = $2;
	`
	insertClientSQL = `
		INSERT INTO clientes (id, tenant_id, nome, tipo_pessoa, documento)
		VALUES ($1, $2, $3, $4, $5);
	`
	findCourtSQL = `
		SELECT id, tenant_id, nome, sigla, uf, esfera, site_url
		FROM tribunais
		WHERE (($1 <> '' AND sigla = $1) OR ($2 <> '' AND $3 <> '' AND nome = $2 AND uf = $3))
			AND (tenant_id = $4 OR tenant_id IS NULL)
		ORDER BY (tenant_id IS NULL) DESC, created_at
		LIMIT 1;
	`
	insertCourtSQL = `
		INSERT INTO tribunais (id, tenant_id, nome, sigla, uf, esfera, site_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	listPartiesSQL = `
		SELECT id, tenant_id, processo_id, tipo_polo, nome, documento, tipo_documento, cliente_id
		FROM processo_partes
		WHERE processo_id = $1
		ORDER BY id;
	`
	updatePartySQL = `
		UPDATE processo_partes SET documento = $2, tipo_documento = $3, cliente_id = $4
		WHERE id = $1;
	`
	linkLawyerClientSQL = `
		INSERT INTO advogado_clientes (tenant_id, advogado_id, cliente_id, relacionamento)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (advogado_id, cliente_id) DO NOTHING;
	`
)

var partyColumns = []string{
	"id", "tenant_id", "processo_id", "tipo_polo", "nome", "documento", "tipo_documento", "cliente_id",
}

// CaseStore implements store.CaseStore with one pgx transaction per call.
type CaseStore struct {
	db  DB
	now func() time.Time
}

var _ store.CaseStore = (*CaseStore)(nil)

// NewCaseStore wraps a pool (or a pgxmock pool in tests).
func NewCaseStore(db DB) (*CaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// InTx runs fn inside a transaction.
func (s *CaseStore) InTx(ctx context.Context, fn func(tx store.CaseTx) error) error {
	return inTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&caseTx{tx: tx, now: s.now})
	})
}

type caseTx struct {
	tx  pgx.Tx
	now func() time.Time
}

func (t *caseTx) FindCase(ctx context.Context, tenantID, numero string) (store.CaseRecord, error) {
	var (
		rec                               store.CaseRecord
		status                            string
		tribunalID, clienteID, advogadoID *string
	)
	err := t.tx.QueryRow(ctx, findCaseSQL, tenantID, numero).Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.Numero,
		&rec.NumeroCNJ,
		&rec.Titulo,
		&rec.Descricao,
		&rec.Classe,
		&rec.Comarca,
		&rec.Vara,
		&rec.DataDistribuicao,
		&rec.ValorCausa,
		&status,
		&tribunalID,
		&clienteID,
		&advogadoID,
	)
	if err != nil {
		return store.CaseRecord{}, fmt.Errorf("failed to find case: %w", notFound(err))
	}
	rec.Status = store.CaseStatus(status)
	rec.TribunalID = deref(tribunalID)
	rec.ClienteID = deref(clienteID)
	rec.AdvogadoResponsavelID = deref(advogadoID)
	return rec, nil
}

func (t *caseTx) CreateCase(ctx context.Context, rec store.CaseRecord) error {
	_, err := t.tx.Exec(ctx, insertCaseSQL,
		rec.ID,
		rec.TenantID,
		rec.Numero,
		rec.NumeroCNJ,
		rec.Titulo,
		rec.Descricao,
		rec.Classe,
		rec.Comarca,
		rec.Vara,
		rec.DataDistribuicao,
		rec.ValorCausa,
		string(rec.Status),
		nullable(rec.TribunalID),
		nullable(rec.ClienteID),
		nullable(rec.AdvogadoResponsavelID),
		t.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

func (t *caseTx) UpdateCase(ctx context.Context, rec store.CaseRecord) error {
	tag, err := t.tx.Exec(ctx, updateCaseSQL,
		rec.ID,
		rec.NumeroCNJ,
		rec.Descricao,
		rec.Classe,
		rec.Comarca,
		rec.Vara,
		rec.DataDistribuicao,
		rec.ValorCausa,
		string(rec.Status),
		nullable(rec.TribunalID),
		nullable(rec.ClienteID),
		nullable(rec.AdvogadoResponsavelID),
		t.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update case %s: %w", rec.ID, store.ErrNotFound)
	}
	return nil
}

func (t *caseTx) GetClient(ctx context.Context, tenantID, id string) (store.ClientRecord, error) {
	return t.queryClient(ctx, getClientSQL, tenantID, id)
}

func (t *caseTx) FindClientByName(ctx context.Context, tenantID, nome string) (store.ClientRecord, error) {
	return t.queryClient(ctx, findClientSQL, tenantID, nome)
}

func (t *caseTx) queryClient(ctx context.Context, sql, tenantID, key string) (store.ClientRecord, error) {
	var (
		rec  store.ClientRecord
		tipo string
	)
	err := t.tx.QueryRow(ctx, sql, tenantID, key).Scan(
		&rec.ID, &rec.TenantID, &rec.Nome, &tipo, &rec.Documento,
	)
	if err != nil {
		return store.ClientRecord{}, fmt.Errorf("failed to find client: %w", notFound(err))
	}
	rec.TipoPessoa = store.PersonType(tipo)
	return rec, nil
}

func (t *caseTx) CreateClient(ctx context.Context, rec store.ClientRecord) error {
	if _, err := t.tx.Exec(ctx, insertClientSQL,
		rec.ID, rec.TenantID, rec.Nome, string(rec.TipoPessoa), rec.Documento,
	); err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (t *caseTx) FindCourt(ctx context.Context, q store.CourtQuery) (store.CourtRecord, error) {
	var (
		rec      store.CourtRecord
		tenantID *string
	)
	err := t.tx.QueryRow(ctx, findCourtSQL, q.Sigla, q.Nome, q.UF, q.TenantID).Scan(
		&rec.ID, &tenantID, &rec.Nome, &rec.Sigla, &rec.UF, &rec.Esfera, &rec.SiteURL,
	)
	if err != nil {
		return store.CourtRecord{}, fmt.Errorf("failed to find court: %w", notFound(err))
	}
	rec.TenantID = deref(tenantID)
	return rec, nil
}

func (t *caseTx) CreateCourt(ctx context.Context, rec store.CourtRecord) error {
	if _, err := t.tx.Exec(ctx, insertCourtSQL,
		rec.ID, nullable(rec.TenantID), rec.Nome, rec.Sigla, rec.UF, rec.Esfera, rec.SiteURL,
	); err != nil {
		return fmt.Errorf("failed to insert court: %w", err)
	}
	return nil
}

func (t *caseTx) ListParties(ctx context.Context, caseID string) ([]store.PartyRecord, error) {
	rows, err := t.tx.Query(ctx, listPartiesSQL, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var out []store.PartyRecord
	for rows.Next() {
		var (
			rec       store.PartyRecord
			polo      string
			clienteID *string
		)
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.CaseID, &polo, &rec.Nome, &rec.Documento, &rec.TipoDocumento, &clienteID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		rec.Polo = capture.PartyRole(polo)
		rec.ClienteID = deref(clienteID)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parties: %w", err)
	}
	return out, nil
}

func (t *caseTx) InsertParties(ctx context.Context, recs []store.PartyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []any{
			rec.ID, rec.TenantID, rec.CaseID, string(rec.Polo), rec.Nome, rec.Documento, rec.TipoDocumento,
			nullable(rec.ClienteID),
		})
	}
	if _, err := t.tx.CopyFrom(ctx, pgx.Identifier{"processo_partes"}, partyColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to insert parties: %w", err)
	}
	return nil
}

func (t *caseTx) UpdateParty(ctx context.Context, rec store.PartyRecord) error {
	if _, err := t.tx.Exec(ctx, updatePartySQL,
		rec.ID, rec.Documento, rec.TipoDocumento, nullable(rec.ClienteID),
	); err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}
	return nil
}

func (t *caseTx) LinkLawyerClient(ctx context.Context, tenantID, advogadoID, clienteID string) error {
	if _, err := t.tx.Exec(ctx, linkLawyerClientSQL,
		tenantID, advogadoID, clienteID, RelationshipImported,
	); err != nil {
		return fmt.Errorf("failed to link lawyer and client: %w", err)
	}
	return nil
}
