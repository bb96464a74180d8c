// Package reconciler folds captured cases into the tenant's case, client,
// court and party records.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// UpsertInput describes one captured case to persist.
type UpsertInput struct {
	TenantID string
	Case     capture.CapturedCase
	// ClienteNome, when set, names the client and reassigns existing cases to it.
	ClienteNome string
	// AdvogadoID, when set, becomes the responsible lawyer and is linked to the client.
	AdvogadoID     string
	UpdateIfExists bool
}

// UpsertResult reports what UpsertCase did.
type UpsertResult struct {
	CaseID  string
	Created bool
	Updated bool
}

// Reconciler implements the idempotent capture upsert.
type Reconciler struct {
	cases  store.CaseStore
	courts capture.CourtDirectory
	ids    capture.IDGenerator
	logger *zap.Logger
}

// New constructs a Reconciler. courts may be nil, in which case court rows
// are built from the captured fields alone.
func New(cases store.CaseStore, courts capture.CourtDirectory, ids capture.IDGenerator, logger *zap.Logger) (*Reconciler, error) {
	if cases == nil {
		return nil, errors.New("case store is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{cases: cases, courts: courts, ids: ids, logger: logger.Named("reconciler")}, nil
}

// UpsertCase creates or merges the captured case inside one transaction.
// Running it twice with the same input leaves one case and one set of parties.
func (r *Reconciler) UpsertCase(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	numero := strings.TrimSpace(in.Case.NumeroProcesso)
	if numero == "" {
		return UpsertResult{}, capture.ErrMissingCaseNumber
	}
	in.ClienteNome = strings.TrimSpace(in.ClienteNome)

	var res UpsertResult
	err := r.cases.InTx(ctx, func(tx store.CaseTx) error {
		existing, err := tx.FindCase(ctx, in.TenantID, numero)
		switch {
		case errors.Is(err, store.ErrNotFound):
			res, err = r.create(ctx, tx, in, numero)
			return err
		case err != nil:
			return err
		case !in.UpdateIfExists:
			res = UpsertResult{CaseID: existing.ID}
			return nil
		default:
			res, err = r.update(ctx, tx, in, numero, existing)
			return err
		}
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert case %s: %w", numero, err)
	}
	return res, nil
}

func (r *Reconciler) create(ctx context.Context, tx store.CaseTx, in UpsertInput, numero string) (UpsertResult, error) {
	client, err := r.ensureClient(ctx, tx, in.TenantID, in.Case, in.ClienteNome)
	if err != nil {
		return UpsertResult{}, err
	}
	court, err := r.ensureCourt(ctx, tx, in.TenantID, in.Case)
	if err != nil {
		return UpsertResult{}, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("case id: %w", err)
	}
	c := in.Case
	rec := store.CaseRecord{
		ID:                    id,
		TenantID:              in.TenantID,
		Numero:                numero,
		NumeroCNJ:             numero,
		Titulo:                "Processo " + numero,
		Descricao:             strings.TrimSpace(c.Assunto),
		Classe:                strings.TrimSpace(c.Classe),
		Comarca:               strings.TrimSpace(c.Comarca),
		Vara:                  strings.TrimSpace(c.Vara),
		DataDistribuicao:      c.DataDistribuicao,
		ValorCausa:            c.ValorCausa,
		Status:                store.CaseInProgress,
		TribunalID:            court.ID,
		ClienteID:             client.ID,
		AdvogadoResponsavelID: in.AdvogadoID,
	}
	if err := tx.CreateCase(ctx, rec); err != nil {
		return UpsertResult{}, err
	}
	parties, err := r.buildParties(in.TenantID, id, c.Partes, client)
	if err != nil {
		return UpsertResult{}, err
	}
	if len(parties) > 0 {
		if err := tx.InsertParties(ctx, parties); err != nil {
			return UpsertResult{}, err
		}
	}
	if err := linkLawyer(ctx, tx, in.TenantID, in.AdvogadoID, client.ID); err != nil {
		return UpsertResult{}, err
	}
	r.logger.Debug("case created", zap.String("tenant_id", in.TenantID), zap.String("numero", numero))
	return UpsertResult{CaseID: id, Created: true}, nil
}

func (r *Reconciler) update(
	ctx context.Context,
	tx store.CaseTx,
	in UpsertInput,
	numero string,
	existing store.CaseRecord,
) (UpsertResult, error) {
	client, err := r.targetClient(ctx, tx, in, existing)
	if err != nil {
		return UpsertResult{}, err
	}
	court, err := r.ensureCourt(ctx, tx, in.TenantID, in.Case)
	if err != nil {
		return UpsertResult{}, err
	}

	// The portal is authoritative: captured details replace stored ones,
	// blanks included.
	c := in.Case
	rec := existing
	rec.NumeroCNJ = numero
	rec.Classe = strings.TrimSpace(c.Classe)
	rec.Comarca = strings.TrimSpace(c.Comarca)
	rec.Vara = strings.TrimSpace(c.Vara)
	rec.Descricao = strings.TrimSpace(c.Assunto)
	rec.DataDistribuicao = c.DataDistribuicao
	rec.ValorCausa = c.ValorCausa
	rec.TribunalID = court.ID
	if rec.Status == store.CaseDraft {
		rec.Status = store.CaseInProgress
	}
	if in.AdvogadoID != "" {
		rec.AdvogadoResponsavelID = in.AdvogadoID
	}
	rec.ClienteID = client.ID
	if err := tx.UpdateCase(ctx, rec); err != nil {
		return UpsertResult{}, err
	}

	parties, err := r.buildParties(in.TenantID, existing.ID, c.Partes, client)
	if err != nil {
		return UpsertResult{}, err
	}
	if err := mergeParties(ctx, tx, existing.ID, parties); err != nil {
		return UpsertResult{}, err
	}
	if err := linkLawyer(ctx, tx, in.TenantID, in.AdvogadoID, client.ID); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{CaseID: existing.ID, Updated: true}, nil
}

// targetClient keeps the case's client unless a name was supplied explicitly.
func (r *Reconciler) targetClient(
	ctx context.Context,
	tx store.CaseTx,
	in UpsertInput,
	existing store.CaseRecord,
) (store.ClientRecord, error) {
	if in.ClienteNome != "" {
		client, err := r.ensureClient(ctx, tx, in.TenantID, in.Case, in.ClienteNome)
		if err != nil {
			return store.ClientRecord{}, err
		}
		if existing.ClienteID != "" && existing.ClienteID != client.ID {
			r.logger.Info("case client reassigned",
				zap.String("tenant_id", in.TenantID),
				zap.String("case_id", existing.ID),
				zap.String("from_client_id", existing.ClienteID),
				zap.String("to_client_id", client.ID),
			)
		}
		return client, nil
	}
	if existing.ClienteID != "" {
		current, err := tx.GetClient(ctx, in.TenantID, existing.ClienteID)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.ClientRecord{}, err
		}
	}
	return r.ensureClient(ctx, tx, in.TenantID, in.Case, "")
}

func linkLawyer(ctx context.Context, tx store.CaseTx, tenantID, advogadoID, clienteID string) error {
	if advogadoID == "" || clienteID == "" {
		return nil
	}
	return tx.LinkLawyerClient(ctx, tenantID, advogadoID, clienteID)
}

