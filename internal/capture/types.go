package capture

import (
	"time"
)

// PartyRole is the polo of a party in a case.
type PartyRole string

const (
	// RolePlaintiff is the AUTOR polo.
	RolePlaintiff PartyRole = "AUTOR"
	// RoleDefendant is the REU polo.
	RoleDefendant PartyRole = "REU"
	// RoleThirdParty is the TERCEIRO polo.
	RoleThirdParty PartyRole = "TERCEIRO"
)

// ParseRole maps a scraper role label to a polo. Unknown labels are rejected.
func ParseRole(raw string) (PartyRole, bool) {
	switch PartyRole(NormalizeName(raw)) {
	case RolePlaintiff:
		return RolePlaintiff, true
	case RoleDefendant:
		return RoleDefendant, true
	case RoleThirdParty:
		return RoleThirdParty, true
	default:
		return "", false
	}
}

// CapturedParty is a party as reported by the court portal.
type CapturedParty struct {
	Tipo          string `json:"tipo"`
	Nome          string `json:"nome"`
	Documento     string `json:"documento,omitempty"`
	TipoDocumento string `json:"tipoDocumento,omitempty"`
}

// CapturedCase is the ephemeral case record produced by a scraper.
type CapturedCase struct {
	NumeroProcesso   string          `json:"numeroProcesso"`
	TribunalNome     string          `json:"tribunalNome,omitempty"`
	TribunalSigla    string          `json:"tribunalSigla,omitempty"`
	Esfera           string          `json:"esfera,omitempty"`
	UF               string          `json:"uf,omitempty"`
	Classe           string          `json:"classe,omitempty"`
	Assunto          string          `json:"assunto,omitempty"`
	Comarca          string          `json:"comarca,omitempty"`
	Vara             string          `json:"vara,omitempty"`
	DataDistribuicao *time.Time      `json:"dataDistribuicao,omitempty"`
	ValorCausa       *float64        `json:"valorCausa,omitempty"`
	Partes           []CapturedParty `json:"partes,omitempty"`
}

// CaptchaChallenge is the portal's request for a human answer.
type CaptchaChallenge struct {
	ID    string `json:"id"`
	Image string `json:"imageDataUrl"`
}

// ScrapeResult holds exactly one of two outcomes: captured cases or a challenge.
type ScrapeResult struct {
	Cases     []CapturedCase    `json:"cases,omitempty"`
	Challenge *CaptchaChallenge `json:"captcha,omitempty"`
}

// NeedsCaptcha reports whether the scraper paused on a challenge.
func (r ScrapeResult) NeedsCaptcha() bool {
	return r.Challenge != nil
}

// ScrapeRequest starts a lookup by bar number.
type ScrapeRequest struct {
	SyncID        string `json:"syncId"`
	TribunalSigla string `json:"tribunalSigla"`
	OAB           string `json:"oab"`
}

// CaptchaSubmission continues a lookup paused on a challenge.
type CaptchaSubmission struct {
	SyncID        string `json:"syncId"`
	TribunalSigla string `json:"tribunalSigla"`
	OAB           string `json:"oab"`
	CaptchaID     string `json:"captchaId"`
	CaptchaText   string `json:"captchaText"`
}

// Court is an entry of the supported-court directory.
type Court struct {
	Sigla           string `mapstructure:"sigla" json:"sigla"`
	Nome            string `mapstructure:"nome" json:"nome"`
	UF              string `mapstructure:"uf" json:"uf"`
	Esfera          string `mapstructure:"esfera" json:"esfera"`
	Sistema         string `mapstructure:"sistema" json:"sistema"`
	URLBase         string `mapstructure:"url_base" json:"urlBase,omitempty"`
	ScrapingEnabled bool   `mapstructure:"scraping_enabled" json:"scrapingEnabled"`
}

// Lawyer is the lawyer profile attached to a user.
type Lawyer struct {
	ID        string
	TenantID  string
	UsuarioID string
	OABNumero string
	OABUF     string
}

// BarNumber returns the profile's OAB in its sanitized form.
func (l Lawyer) BarNumber() string {
	if l.OABNumero == "" || l.OABUF == "" {
		return ""
	}
	return NormalizeOAB(l.OABNumero + l.OABUF)
}

// JobPayload is the descriptor handed to the job queue.
type JobPayload struct {
	SyncID        string `json:"syncId"`
	TenantID      string `json:"tenantId"`
	UsuarioID     string `json:"usuarioId"`
	AdvogadoID    string `json:"advogadoId,omitempty"`
	TribunalSigla string `json:"tribunalSigla"`
	OAB           string `json:"oab"`
	ClienteNome   string `json:"clienteNome,omitempty"`
	Mode          Mode   `json:"mode"`
	CaptchaID     string `json:"captchaId,omitempty"`
	CaptchaText   string `json:"captchaText,omitempty"`
}

// PayloadFor builds the job descriptor for state. A CAPTCHA continuation
// carries the answered challenge id; the answer text is added by the caller.
func PayloadFor(state SyncState) JobPayload {
	var captchaID string
	if q, ok := state.Phase.(Queued); ok && state.Mode == ModeCaptcha {
		captchaID = q.AnsweredCaptchaID
	}
	return JobPayload{
		SyncID:        state.SyncID,
		TenantID:      state.TenantID,
		UsuarioID:     state.UsuarioID,
		AdvogadoID:    state.AdvogadoID,
		TribunalSigla: state.TribunalSigla,
		OAB:           state.OAB,
		ClienteNome:   state.ClienteNome,
		Mode:          state.Mode,
		CaptchaID:     captchaID,
	}
}

// QueueItem is a job handed to a worker.
type QueueItem struct {
	JobID     string
	Payload   JobPayload
	Attempt   int
	Submitted int64
}
