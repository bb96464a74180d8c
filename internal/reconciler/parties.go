package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

func partyKey(role capture.PartyRole, name string) string {
	return string(role) + ":" + capture.NormalizeName(name)
}

// buildParties maps captured parties to rows, dropping unknown roles and
// duplicates, and makes sure the client appears as a plaintiff.
func (r *Reconciler) buildParties(
	tenantID, caseID string,
	captured []capture.CapturedParty,
	client store.ClientRecord,
) ([]store.PartyRecord, error) {
	clientKey := capture.NormalizeName(client.Nome)
	seen := make(map[string]struct{}, len(captured)+1)
	out := make([]store.PartyRecord, 0, len(captured)+1)

	add := func(rec store.PartyRecord) error {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("party id: %w", err)
		}
		rec.ID = id
		rec.TenantID = tenantID
		rec.CaseID = caseID
		out = append(out, rec)
		return nil
	}

	for _, p := range captured {
		role, ok := capture.ParseRole(p.Tipo)
		if !ok {
			continue
		}
		name := strings.TrimSpace(p.Nome)
		if name == "" {
			continue
		}
		key := partyKey(role, name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rec := store.PartyRecord{
			Polo:          role,
			Nome:          name,
			Documento:     strings.TrimSpace(p.Documento),
			TipoDocumento: strings.TrimSpace(p.TipoDocumento),
		}
		if capture.NormalizeName(name) == clientKey {
			rec.ClienteID = client.ID
		}
		if err := add(rec); err != nil {
			return nil, err
		}
	}

	if _, ok := seen[partyKey(capture.RolePlaintiff, client.Nome)]; !ok {
		if err := add(store.PartyRecord{
			Polo:      capture.RolePlaintiff,
			Nome:      client.Nome,
			Documento: client.Documento,
			ClienteID: client.ID,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeParties inserts new rows and enriches matching ones. Existing
// documento and cliente_id values are never overwritten.
func mergeParties(ctx context.Context, tx store.CaseTx, caseID string, incoming []store.PartyRecord) error {
	if len(incoming) == 0 {
		return nil
	}
	existing, err := tx.ListParties(ctx, caseID)
	if err != nil {
		return err
	}
	byKey := make(map[string]store.PartyRecord, len(existing))
	for _, p := range existing {
		byKey[partyKey(p.Polo, p.Nome)] = p
	}

	var fresh []store.PartyRecord
	for _, p := range incoming {
		cur, ok := byKey[partyKey(p.Polo, p.Nome)]
		if !ok {
			fresh = append(fresh, p)
			continue
		}
		changed := false
		if cur.Documento == "" && p.Documento != "" {
			cur.Documento = p.Documento
			if cur.TipoDocumento == "" {
				cur.TipoDocumento = p.TipoDocumento
			}
			changed = true
		}
		if cur.ClienteID == "" && p.ClienteID != "" {
			cur.ClienteID = p.ClienteID
			changed = true
		}
		if changed {
			if err := tx.UpdateParty(ctx, cur); err != nil {
				return err
			}
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return tx.InsertParties(ctx, fresh)
}
