package store

import (
	"context"
	"time"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// CaseStatus mirrors the processos.status column.
type CaseStatus string

// Case statuses touched by the reconciler.
const (
	CaseDraft      CaseStatus = "RASCUNHO"
	CaseInProgress CaseStatus = "EM_ANDAMENTO"
)

// PersonType mirrors clientes.tipo_pessoa.
type PersonType string

// Person types.
const (
	PersonNatural PersonType = "FISICA"
	PersonLegal   PersonType = "JURIDICA"
)

// CaseRecord models a row of processos.
type CaseRecord struct {
	ID        string
	TenantID  string
	Numero    string
	NumeroCNJ string
	Titulo    string
	// Descricao holds the captured subject (assunto).
	Descricao        string
	Classe           string
	Comarca          string
	Vara             string
	DataDistribuicao *time.Time
	ValorCausa       *float64
	Status           CaseStatus
	TribunalID       string
	ClienteID        string
	// AdvogadoResponsavelID is empty when no lawyer is responsible.
	AdvogadoResponsavelID string
}

// ClientRecord models a row of clientes.
type ClientRecord struct {
	ID         string
	TenantID   string
	Nome       string
	TipoPessoa PersonType
	Documento  string
}

// CourtRecord models a row of tribunais. An empty TenantID marks a global court.
type CourtRecord struct {
	ID       string
	TenantID string
	Nome     string
	Sigla    string
	UF       string
	Esfera   string
	SiteURL  string
}

// Global reports whether the court is shared across tenants.
func (c CourtRecord) Global() bool {
	return c.TenantID == ""
}

// CourtQuery matches by sigla, or by (nome, uf), among the tenant's and the
// global courts.
type CourtQuery struct {
	TenantID string
	Sigla    string
	Nome     string
	UF       string
}

// PartyRecord models a row of processo_partes.
type PartyRecord struct {
	ID            string
	TenantID      string
	CaseID        string
	Polo          capture.PartyRole
	Nome          string
	Documento     string
	TipoDocumento string
	ClienteID     string
}

// CaseTx is the set of relational operations the reconciler runs inside one
// transaction. Finders return ErrNotFound when nothing matches.
type CaseTx interface {
	// FindCase matches numero or numero_cnj within the tenant.
	FindCase(ctx context.Context, tenantID, numero string) (CaseRecord, error)
	CreateCase(ctx context.Context, rec CaseRecord) error
	UpdateCase(ctx context.Context, rec CaseRecord) error
	GetClient(ctx context.Context, tenantID, id string) (ClientRecord, error)
	// FindClientByName matches the name case-insensitively within the tenant.
	FindClientByName(ctx context.Context, tenantID, nome string) (ClientRecord, error)
	CreateClient(ctx context.Context, rec ClientRecord) error
	// FindCourt prefers global courts over tenant-owned ones.
	FindCourt(ctx context.Context, q CourtQuery) (CourtRecord, error)
	CreateCourt(ctx context.Context, rec CourtRecord) error
	ListParties(ctx context.Context, caseID string) ([]PartyRecord, error)
	InsertParties(ctx context.Context, recs []PartyRecord) error
	UpdateParty(ctx context.Context, rec PartyRecord) error
	// LinkLawyerClient idempotently relates a lawyer to a client.
	LinkLawyerClient(ctx context.Context, tenantID, advogadoID, clienteID string) error
}

// CaseStore runs fn inside a transaction, committing when fn returns nil.
type CaseStore interface {
	InTx(ctx context.Context, fn func(tx CaseTx) error) error
}
