package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// DefaultClientName is used when a captured case names no party at all.
const DefaultClientName = "Cliente importado"

var legalEntityMarkers = []string{
	"LTDA", "S/A", "SA ", "EIRELI", "MEI", "EPP", "ASSOCIACAO", "CONDOMINIO",
	"EMPRESA", "COMERCIO", "INDUSTRIA", "COOPERATIVA", "HOSPITAL", "CLINICA",
}

// InferPersonType guesses whether a name belongs to a company.
func InferPersonType(name string) store.PersonType {
	normalized := capture.NormalizeName(name)
	for _, marker := range legalEntityMarkers {
		if strings.Contains(normalized, marker) {
			return store.PersonLegal
		}
	}
	return store.PersonNatural
}

// ClientName picks the client for a case: the explicit name, else the first
// plaintiff, else the first party.
func ClientName(c capture.CapturedCase, explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	for _, p := range c.Partes {
		if role, ok := capture.ParseRole(p.Tipo); ok && role == capture.RolePlaintiff {
			if v := strings.TrimSpace(p.Nome); v != "" {
				return v
			}
		}
	}
	if len(c.Partes) > 0 {
		if v := strings.TrimSpace(c.Partes[0].Nome); v != "" {
			return v
		}
	}
	return DefaultClientName
}

func (r *Reconciler) ensureClient(
	ctx context.Context,
	tx store.CaseTx,
	tenantID string,
	c capture.CapturedCase,
	explicit string,
) (store.ClientRecord, error) {
	name := ClientName(c, explicit)
	existing, err := tx.FindClientByName(ctx, tenantID, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.ClientRecord{}, err
	}

	id, err := r.ids.NewID()
	if err != nil {
		return store.ClientRecord{}, fmt.Errorf("client id: %w", err)
	}
	rec := store.ClientRecord{
		ID:         id,
		TenantID:   tenantID,
		Nome:       name,
		TipoPessoa: InferPersonType(name),
		Documento:  documentFor(c.Partes, name),
	}
	if err := tx.CreateClient(ctx, rec); err != nil {
		return store.ClientRecord{}, err
	}
	return rec, nil
}

func documentFor(parties []capture.CapturedParty, name string) string {
	key := capture.NormalizeName(name)
	for _, p := range parties {
		if p.Documento != "" && capture.NormalizeName(p.Nome) == key {
			return strings.TrimSpace(p.Documento)
		}
	}
	return ""
}
