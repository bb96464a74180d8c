package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/auth"
	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/id/uuid"
	"github.com/JakeFAU/oab-process-sync/internal/orchestrator"
)

const (
	handlerTimeout       = 10 * time.Second
	maxBodyBytes         = 16 << 10
	internalErrorMessage = "internal error"
)

// SyncService is the operation set exposed over HTTP.
type SyncService interface {
	Start(ctx context.Context, p auth.Principal, req orchestrator.StartRequest) (capture.StatusView, error)
	PollStatus(ctx context.Context, p auth.Principal, syncID string) (*capture.StatusView, error)
	ResolveCaptcha(ctx context.Context, p auth.Principal, ans orchestrator.CaptchaAnswer) (capture.StatusView, error)
	History(ctx context.Context, p auth.Principal, limit int) ([]capture.StatusView, error)
	Courts(ctx context.Context, p auth.Principal) ([]capture.Court, error)
}

// SyncHandler exposes the capture operations.
type SyncHandler struct {
	svc     SyncService
	timeout time.Duration
	logger  *zap.Logger
}

// NewSyncHandler wires the service and logger.
func NewSyncHandler(svc SyncService, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{svc: svc, timeout: handlerTimeout, logger: logger}
}

// StartSync handles POST /v1/sync. It answers 202 with the new sync, 400 for
// bad input, 409 with the blocking sync, or 500.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.svc.Start(ctx, p, orchestrator.StartRequest{
		TribunalSigla: req.TribunalSigla,
		OAB:           req.OAB,
		ClienteNome:   req.ClienteNome,
	})
	if err != nil {
		h.fail(w, r, "start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, syncResponse{Success: true, SyncID: view.SyncID, Status: &view})
}

// SyncStatus handles GET /v1/sync/status?syncId=. Without syncId it returns
// the caller's latest sync, which may be absent.
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	syncID := strings.TrimSpace(r.URL.Query().Get("syncId"))
	if syncID != "" && !uuid.Valid(syncID) {
		h.fail(w, r, "status", capture.ErrForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.svc.PollStatus(ctx, p, syncID)
	if err != nil {
		h.fail(w, r, "status", err)
		return
	}
	resp := syncResponse{Success: true, Status: view}
	if view != nil {
		resp.SyncID = view.SyncID
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResolveCaptcha handles POST /v1/sync/{sync_id}/captcha.
func (h *SyncHandler) ResolveCaptcha(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	syncID := chi.URLParam(r, "sync_id")
	if !uuid.Valid(syncID) {
		h.fail(w, r, "captcha", capture.ErrForbidden)
		return
	}
	var req captchaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.svc.ResolveCaptcha(ctx, p, orchestrator.CaptchaAnswer{
		SyncID:    syncID,
		CaptchaID: req.CaptchaID,
		Text:      req.CaptchaText,
	})
	if err != nil {
		h.fail(w, r, "captcha", err)
		return
	}
	writeJSON(w, http.StatusAccepted, syncResponse{Success: true, SyncID: view.SyncID, Status: &view})
}

// History handles GET /v1/sync/history?limit=.
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	views, err := h.svc.History(ctx, p, limit)
	if err != nil {
		h.fail(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, Items: views})
}

// Courts handles GET /v1/courts.
func (h *SyncHandler) Courts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	courts, err := h.svc.Courts(r.Context(), p)
	if err != nil {
		h.fail(w, r, "courts", err)
		return
	}
	writeJSON(w, http.StatusOK, courtsResponse{Success: true, Courts: courts})
}

func (h *SyncHandler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok || !p.Authenticated() {
		unauthorized(w, r)
		return auth.Principal{}, false
	}
	return p, true
}

// fail maps an error class to its status code. Conflicts carry the sync the
// caller should resume from; system errors are logged and masked.
func (h *SyncHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := syncResponse{Success: false, Error: err.Error()}
	status := http.StatusInternalServerError
	switch capture.KindOf(err) {
	case capture.KindValidation:
		status = http.StatusBadRequest
	case capture.KindUnauthenticated:
		status = http.StatusUnauthorized
	case capture.KindForbidden:
		status = http.StatusForbidden
		resp.Error = capture.ErrForbidden.Error()
	case capture.KindConflict:
		status = http.StatusConflict
		var conflict *capture.ConflictError
		if errors.As(err, &conflict) {
			view := conflict.State.View()
			resp.SyncID = view.SyncID
			resp.Status = &view
		}
	default:
		h.logger.Error("sync request failed",
			zap.String("operation", op),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		resp.Error = internalErrorMessage
	}
	writeJSON(w, status, resp)
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type startRequest struct {
	TribunalSigla string `json:"tribunalSigla"`
	OAB           string `json:"oab"`
	ClienteNome   string `json:"clienteNome"`
}

type captchaRequest struct {
	CaptchaID   string `json:"captchaId"`
	CaptchaText string `json:"captchaText"`
}

type syncResponse struct {
	Success bool                `json:"success"`
	SyncID  string              `json:"syncId,omitempty"`
	Status  *capture.StatusView `json:"status,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type historyResponse struct {
	Success bool                 `json:"success"`
	Items   []capture.StatusView `json:"items"`
}

type courtsResponse struct {
	Success bool            `json:"success"`
	Courts  []capture.Court `json:"courts"`
}
