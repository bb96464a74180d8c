package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// ensureCourt finds the court among the tenant's and the global rows, or
// creates a global one.
func (r *Reconciler) ensureCourt(
	ctx context.Context,
	tx store.CaseTx,
	tenantID string,
	c capture.CapturedCase,
) (store.CourtRecord, error) {
	rec := r.courtFromCapture(c)

	if rec.Sigla != "" || (rec.Nome != "" && rec.UF != "") {
		q := store.CourtQuery{TenantID: tenantID, Sigla: rec.Sigla}
		if rec.UF != "" {
			q.Nome, q.UF = rec.Nome, rec.UF
		}
		existing, err := tx.FindCourt(ctx, q)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.CourtRecord{}, err
		}
	}

	id, err := r.ids.NewID()
	if err != nil {
		return store.CourtRecord{}, fmt.Errorf("court id: %w", err)
	}
	rec.ID = id
	if err := tx.CreateCourt(ctx, rec); err != nil {
		return store.CourtRecord{}, err
	}
	return rec, nil
}

// courtFromCapture fills gaps in the captured court fields from the directory.
func (r *Reconciler) courtFromCapture(c capture.CapturedCase) store.CourtRecord {
	sigla := strings.ToUpper(strings.TrimSpace(c.TribunalSigla))
	var known capture.Court
	if sigla != "" && r.courts != nil {
		known, _ = r.courts.Lookup(sigla)
	}
	rec := store.CourtRecord{
		Nome:    first(c.TribunalNome, known.Nome, sigla, "Tribunal"),
		Sigla:   first(sigla, known.Sigla),
		UF:      first(c.UF, known.UF),
		Esfera:  first(c.Esfera, known.Esfera),
		SiteURL: known.URLBase,
	}
	return rec
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
