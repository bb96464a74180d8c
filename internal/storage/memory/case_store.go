package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/oab-process-sync/internal/store"
)

type lawyerClientKey struct {
	tenantID   string
	advogadoID string
	clienteID  string
}

type caseTables struct {
	cases   []store.CaseRecord
	clients []store.ClientRecord
	courts  []store.CourtRecord
	parties []store.PartyRecord
	links   map[lawyerClientKey]struct{}
}

func (t caseTables) clone() caseTables {
	links := make(map[lawyerClientKey]struct{}, len(t.links))
	for k := range t.links {
		links[k] = struct{}{}
	}
	return caseTables{
		cases:   append([]store.CaseRecord(nil), t.cases...),
		clients: append([]store.ClientRecord(nil), t.clients...),
		courts:  append([]store.CourtRecord(nil), t.courts...),
		parties: append([]store.PartyRecord(nil), t.parties...),
		links:   links,
	}
}

// CaseStore is an in-memory store.CaseStore. Transactions are serialized and
// run against a copy that replaces the tables on commit.
type CaseStore struct {
	mu     sync.Mutex
	tables caseTables
}

var _ store.CaseStore = (*CaseStore)(nil)

// NewCaseStore constructs an empty CaseStore.
func NewCaseStore() *CaseStore {
	return &CaseStore{tables: caseTables{links: make(map[lawyerClientKey]struct{})}}
}

// InTx runs fn against a snapshot and commits it when fn succeeds.
func (s *CaseStore) InTx(ctx context.Context, fn func(tx store.CaseTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &caseTx{tables: s.tables.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit canceled: %w", err)
	}
	s.tables = tx.tables
	return nil
}

// SeedCourt inserts a court outside of a transaction.
func (s *CaseStore) SeedCourt(rec store.CourtRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables.courts = append(s.tables.courts, rec)
}

// SeedCase inserts a case outside of a transaction.
func (s *CaseStore) SeedCase(rec store.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables.cases = append(s.tables.cases, rec)
}

// Cases returns a copy of the case table.
func (s *CaseStore) Cases() []store.CaseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.CaseRecord(nil), s.tables.cases...)
}

// Clients returns a copy of the client table.
func (s *CaseStore) Clients() []store.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.ClientRecord(nil), s.tables.clients...)
}

// Courts returns a copy of the court table.
func (s *CaseStore) Courts() []store.CourtRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.CourtRecord(nil), s.tables.courts...)
}

// Parties returns a copy of the party rows of a case.
func (s *CaseStore) Parties(caseID string) []store.PartyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PartyRecord
	for _, p := range s.tables.parties {
		if p.CaseID == caseID {
			out = append(out, p)
		}
	}
	return out
}

// LinkCount returns the number of lawyer-client links.
func (s *CaseStore) LinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables.links)
}

type caseTx struct {
	tables caseTables
}

func (t *caseTx) FindCase(_ context.Context, tenantID, numero string) (store.CaseRecord, error) {
	for _, c := range t.tables.cases {
		if c.TenantID == tenantID && (c.Numero == numero || c.NumeroCNJ == numero) {
			return c, nil
		}
	}
	return store.CaseRecord{}, store.ErrNotFound
}

func (t *caseTx) CreateCase(_ context.Context, rec store.CaseRecord) error {
	for _, c := range t.tables.cases {
		if c.TenantID == rec.TenantID && c.Numero == rec.Numero {
			return fmt.Errorf("case %s already exists", rec.Numero)
		}
	}
	t.tables.cases = append(t.tables.cases, rec)
	return nil
}

func (t *caseTx) UpdateCase(_ context.Context, rec store.CaseRecord) error {
	for i, c := range t.tables.cases {
		if c.ID == rec.ID {
			t.tables.cases[i] = rec
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *caseTx) GetClient(_ context.Context, tenantID, id string) (store.ClientRecord, error) {
	for _, c := range t.tables.clients {
		if c.TenantID == tenantID && c.ID == id {
			return c, nil
		}
	}
	return store.ClientRecord{}, store.ErrNotFound
}

func (t *caseTx) FindClientByName(_ context.Context, tenantID, nome string) (store.ClientRecord, error) {
	for _, c := range t.tables.clients {
		if c.TenantID == tenantID && strings.EqualFold(c.Nome, nome) {
			return c, nil
		}
	}
	return store.ClientRecord{}, store.ErrNotFound
}

func (t *caseTx) CreateClient(_ context.Context, rec store.ClientRecord) error {
	t.tables.clients = append(t.tables.clients, rec)
	return nil
}

func (t *caseTx) FindCourt(_ context.Context, q store.CourtQuery) (store.CourtRecord, error) {
	var owned *store.CourtRecord
	for i, c := range t.tables.courts {
		if !courtMatches(c, q) {
			continue
		}
		if c.Global() {
			return c, nil
		}
		if c.TenantID == q.TenantID && owned == nil {
			owned = &t.tables.courts[i]
		}
	}
	if owned != nil {
		return *owned, nil
	}
	return store.CourtRecord{}, store.ErrNotFound
}

func courtMatches(c store.CourtRecord, q store.CourtQuery) bool {
	if q.Sigla != "" && c.Sigla == q.Sigla {
		return true
	}
	return q.Nome != "" && q.UF != "" && c.Nome == q.Nome && c.UF == q.UF
}

func (t *caseTx) CreateCourt(_ context.Context, rec store.CourtRecord) error {
	t.tables.courts = append(t.tables.courts, rec)
	return nil
}

func (t *caseTx) ListParties(_ context.Context, caseID string) ([]store.PartyRecord, error) {
	var out []store.PartyRecord
	for _, p := range t.tables.parties {
		if p.CaseID == caseID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *caseTx) InsertParties(_ context.Context, recs []store.PartyRecord) error {
	t.tables.parties = append(t.tables.parties, recs...)
	return nil
}

func (t *caseTx) UpdateParty(_ context.Context, rec store.PartyRecord) error {
	for i, p := range t.tables.parties {
		if p.ID == rec.ID {
			t.tables.parties[i] = rec
			return nil
		}
	}
	return errors.New("party not found")
}

func (t *caseTx) LinkLawyerClient(_ context.Context, tenantID, advogadoID, clienteID string) error {
	t.tables.links[lawyerClientKey{tenantID: tenantID, advogadoID: advogadoID, clienteID: clienteID}] = struct{}{}
	return nil
}
