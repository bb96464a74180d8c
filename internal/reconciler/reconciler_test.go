package reconciler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/courts"
	"github.com/JakeFAU/oab-process-sync/internal/storage/memory"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", s.n.Add(1)), nil
}

func newReconciler(t *testing.T) (*Reconciler, *memory.CaseStore) {
	t.Helper()
	cs := memory.NewCaseStore()
	dir, err := courts.New(nil, "")
	require.NoError(t, err)
	r, err := New(cs, dir, &seqIDs{}, zap.NewNop())
	require.NoError(t, err)
	return r, cs
}

func sampleCase() capture.CapturedCase {
	dist := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	valor := 15000.5
	return capture.CapturedCase{
		NumeroProcesso:   " 8000123-45.2024.8.05.0001 ",
		TribunalSigla:    "tjba",
		Classe:           "Procedimento Comum Cível",
		Assunto:          "Indenização por Dano Moral",
		Comarca:          "Salvador",
		Vara:             "3ª Vara Cível",
		DataDistribuicao: &dist,
		ValorCausa:       &valor,
		Partes: []capture.CapturedParty{
			{Tipo: "AUTOR", Nome: "José da Silva", Documento: "123.456.789-00", TipoDocumento: "CPF"},
			{Tipo: "REU", Nome: "ACME Comércio LTDA"},
			{Tipo: "ADVOGADO", Nome: "Dra. Maria"},
		},
	}
}

func TestUpsertCaseCreatesThenUpdates(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	ctx := context.Background()

	in := UpsertInput{TenantID: "tenant-1", Case: sampleCase(), AdvogadoID: "adv-1", UpdateIfExists: true}
	first, err := r.UpsertCase(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Updated)

	second, err := r.UpsertCase(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Updated)
	assert.Equal(t, first.CaseID, second.CaseID)

	cases := cs.Cases()
	require.Len(t, cases, 1)
	c := cases[0]
	assert.Equal(t, "8000123-45.2024.8.05.0001", c.Numero)
	assert.Equal(t, c.Numero, c.NumeroCNJ)
	assert.Equal(t, "Processo 8000123-45.2024.8.05.0001", c.Titulo)
	assert.Equal(t, "Indenização por Dano Moral", c.Descricao)
	assert.Equal(t, store.CaseInProgress, c.Status)
	assert.Equal(t, "adv-1", c.AdvogadoResponsavelID)

	clients := cs.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "José da Silva", clients[0].Nome)
	assert.Equal(t, store.PersonNatural, clients[0].TipoPessoa)
	assert.Equal(t, "123.456.789-00", clients[0].Documento)
	assert.Equal(t, clients[0].ID, c.ClienteID)

	parties := cs.Parties(c.ID)
	require.Len(t, parties, 2, "unknown roles are dropped and reruns add nothing")
	assert.Equal(t, 1, cs.LinkCount())

	require.Len(t, cs.Courts(), 1)
	court := cs.Courts()[0]
	assert.True(t, court.Global())
	assert.Equal(t, "TJBA", court.Sigla)
	assert.Equal(t, "Tribunal de Justiça da Bahia", court.Nome)
	assert.Equal(t, "https://www5.tjba.jus.br", court.SiteURL)
}

func TestUpsertCaseDedupesPartiesAcrossAccentsAndCase(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)

	c := sampleCase()
	c.Partes = []capture.CapturedParty{
		{Tipo: "autor", Nome: "José  da Silva"},
		{Tipo: "AUTOR", Nome: "JOSE DA SILVA"},
		{Tipo: "REU", Nome: "José da Silva"},
	}
	res, err := r.UpsertCase(context.Background(), UpsertInput{TenantID: "t", Case: c, UpdateIfExists: true})
	require.NoError(t, err)

	parties := cs.Parties(res.CaseID)
	require.Len(t, parties, 2)
	roles := map[capture.PartyRole]int{}
	for _, p := range parties {
		roles[p.Polo]++
		assert.NotEmpty(t, p.ClienteID, "both rows name the client")
	}
	assert.Equal(t, map[capture.PartyRole]int{capture.RolePlaintiff: 1, capture.RoleDefendant: 1}, roles)
}

func TestUpsertCaseOverwritesFieldsAndPromotesDraft(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	valor := 1500.0
	cs.SeedCase(store.CaseRecord{
		ID:         "case-1",
		TenantID:   "t",
		Numero:     "0001",
		Classe:     "Execução",
		Comarca:    "Feira de Santana",
		Vara:       "2ª Vara Cível",
		Descricao:  "Cobrança",
		ValorCausa: &valor,
		Status:     store.CaseDraft,
	})

	res, err := r.UpsertCase(context.Background(), UpsertInput{
		TenantID:       "t",
		Case:           capture.CapturedCase{NumeroProcesso: "0001", TribunalSigla: "TJBA", Comarca: "Salvador"},
		UpdateIfExists: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Updated)

	got := cs.Cases()[0]
	assert.Equal(t, "Salvador", got.Comarca)
	assert.Empty(t, got.Classe, "blank captured fields clear stored ones")
	assert.Empty(t, got.Vara)
	assert.Empty(t, got.Descricao)
	assert.Nil(t, got.ValorCausa)
	assert.Nil(t, got.DataDistribuicao)
	assert.Equal(t, store.CaseInProgress, got.Status)
	assert.NotEmpty(t, got.TribunalID)
	assert.Equal(t, DefaultClientName, cs.Clients()[0].Nome)
	assert.Zero(t, cs.LinkCount(), "no lawyer, no link")
}

func TestUpsertCaseWithoutUpdateLeavesRecordsAlone(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	cs.SeedCase(store.CaseRecord{ID: "case-1", TenantID: "t", Numero: "x", NumeroCNJ: "0001", Status: store.CaseDraft})

	c := sampleCase()
	c.NumeroProcesso = "0001"
	res, err := r.UpsertCase(context.Background(), UpsertInput{TenantID: "t", Case: c})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{CaseID: "case-1"}, res)
	assert.Equal(t, store.CaseDraft, cs.Cases()[0].Status)
	assert.Empty(t, cs.Clients())
	assert.Empty(t, cs.Courts())
}

func TestUpsertCaseReusesGlobalCourtAcrossTenants(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	ctx := context.Background()

	_, err := r.UpsertCase(ctx, UpsertInput{TenantID: "a", Case: sampleCase(), UpdateIfExists: true})
	require.NoError(t, err)
	_, err = r.UpsertCase(ctx, UpsertInput{TenantID: "b", Case: sampleCase(), UpdateIfExists: true})
	require.NoError(t, err)

	require.Len(t, cs.Courts(), 1)
	require.Len(t, cs.Cases(), 2)
	assert.Equal(t, cs.Cases()[0].TribunalID, cs.Cases()[1].TribunalID)
}

func TestUpsertCasePrefersGlobalCourt(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	cs.SeedCourt(store.CourtRecord{ID: "owned", TenantID: "t", Sigla: "TJSP", Nome: "TJSP local"})
	cs.SeedCourt(store.CourtRecord{ID: "global", Sigla: "TJSP", Nome: "Tribunal de Justiça de São Paulo"})

	c := sampleCase()
	c.TribunalSigla = "TJSP"
	res, err := r.UpsertCase(context.Background(), UpsertInput{TenantID: "t", Case: c, UpdateIfExists: true})
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, "global", cs.Cases()[0].TribunalID)
}

func TestUpsertCaseRequiresNumber(t *testing.T) {
	t.Parallel()
	r, _ := newReconciler(t)

	_, err := r.UpsertCase(context.Background(), UpsertInput{TenantID: "t", Case: capture.CapturedCase{NumeroProcesso: "  "}})
	require.ErrorIs(t, err, capture.ErrMissingCaseNumber)
	assert.Equal(t, capture.KindValidation, capture.KindOf(err))
}

func TestUpsertCaseReassignsClientOnlyWhenNamed(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	ctx := context.Background()

	first, err := r.UpsertCase(ctx, UpsertInput{TenantID: "t", Case: sampleCase(), UpdateIfExists: true})
	require.NoError(t, err)
	original := cs.Cases()[0].ClienteID

	c := sampleCase()
	c.Partes = []capture.CapturedParty{{Tipo: "AUTOR", Nome: "Outra Pessoa"}}
	_, err = r.UpsertCase(ctx, UpsertInput{TenantID: "t", Case: c, UpdateIfExists: true})
	require.NoError(t, err)
	assert.Equal(t, original, cs.Cases()[0].ClienteID, "an unnamed rerun keeps the client")

	_, err = r.UpsertCase(ctx, UpsertInput{
		TenantID: "t", Case: sampleCase(), ClienteNome: "Condomínio Edifício Sol", AdvogadoID: "adv-9", UpdateIfExists: true,
	})
	require.NoError(t, err)
	got := cs.Cases()[0]
	assert.NotEqual(t, original, got.ClienteID)

	var reassigned store.ClientRecord
	for _, cl := range cs.Clients() {
		if cl.ID == got.ClienteID {
			reassigned = cl
		}
	}
	assert.Equal(t, store.PersonLegal, reassigned.TipoPessoa)
	assert.Equal(t, 1, cs.LinkCount())

	var linked int
	for _, p := range cs.Parties(first.CaseID) {
		if p.ClienteID == got.ClienteID {
			linked++
		}
	}
	assert.Equal(t, 1, linked, "the new client is added as a plaintiff")
}

func TestUpsertCaseEnrichesPartiesWithoutOverwriting(t *testing.T) {
	t.Parallel()
	r, cs := newReconciler(t)
	ctx := context.Background()

	c := sampleCase()
	c.Partes = []capture.CapturedParty{
		{Tipo: "AUTOR", Nome: "José da Silva"},
		{Tipo: "REU", Nome: "Banco Exemplo S/A", Documento: "00.000.000/0001-00"},
	}
	res, err := r.UpsertCase(ctx, UpsertInput{TenantID: "t", Case: c, UpdateIfExists: true})
	require.NoError(t, err)

	c.Partes = []capture.CapturedParty{
		{Tipo: "AUTOR", Nome: "JOSÉ DA SILVA", Documento: "111", TipoDocumento: "CPF"},
		{Tipo: "REU", Nome: "Banco Exemplo S/A", Documento: "99.999.999/0001-99"},
		{Tipo: "TERCEIRO", Nome: "Perito Judicial"},
	}
	_, err = r.UpsertCase(ctx, UpsertInput{TenantID: "t", Case: c, UpdateIfExists: true})
	require.NoError(t, err)

	parties := cs.Parties(res.CaseID)
	require.Len(t, parties, 3)
	docs := map[string]string{}
	for _, p := range parties {
		docs[capture.NormalizeName(p.Nome)] = p.Documento
	}
	assert.Equal(t, "111", docs["JOSE DA SILVA"])
	assert.Equal(t, "00.000.000/0001-00", docs["BANCO EXEMPLO S/A"])
	assert.Equal(t, "", docs["PERITO JUDICIAL"])
}

func TestInferPersonType(t *testing.T) {
	t.Parallel()

	tests := map[string]store.PersonType{
		"ACME Comércio LTDA":       store.PersonLegal,
		"Hospital São Rafael":      store.PersonLegal,
		"Associação dos Moradores": store.PersonLegal,
		"Banco Exemplo S/A":        store.PersonLegal,
		"Maria de Souza":           store.PersonNatural,
	}
	for name, want := range tests {
		assert.Equal(t, want, InferPersonType(name), name)
	}
}

func TestClientName(t *testing.T) {
	t.Parallel()

	c := capture.CapturedCase{Partes: []capture.CapturedParty{
		{Tipo: "REU", Nome: "Réu"},
		{Tipo: "AUTOR", Nome: " Autora "},
	}}
	assert.Equal(t, "Explícito", ClientName(c, " Explícito "))
	assert.Equal(t, "Autora", ClientName(c, ""))

	c.Partes = c.Partes[:1]
	assert.Equal(t, "Réu", ClientName(c, ""))
	assert.Equal(t, DefaultClientName, ClientName(capture.CapturedCase{}, ""))
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, &seqIDs{}, nil)
	require.Error(t, err)
	_, err = New(memory.NewCaseStore(), nil, nil, nil)
	require.Error(t, err)
}
