package capture

import "time"

// StatusView is the public projection of a SyncState returned to callers.
// Owner identifiers and the queue handle stay server-side.
type StatusView struct {
	SyncID           string     `json:"syncId"`
	TribunalSigla    string     `json:"tribunalSigla"`
	OAB              string     `json:"oab"`
	AdvogadoID       string     `json:"advogadoId,omitempty"`
	Mode             Mode       `json:"mode"`
	Status           Status     `json:"status"`
	SyncedCount      int        `json:"syncedCount"`
	CreatedCount     int        `json:"createdCount"`
	UpdatedCount     int        `json:"updatedCount"`
	ProcessosNumeros []string   `json:"processosNumeros"`
	CaptchaID        string     `json:"captchaId,omitempty"`
	CaptchaImage     string     `json:"captchaImage,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// View projects the state for callers.
func (s SyncState) View() StatusView {
	c := s.Clone()
	v := StatusView{
		SyncID:           c.SyncID,
		TribunalSigla:    c.TribunalSigla,
		OAB:              c.OAB,
		AdvogadoID:       c.AdvogadoID,
		Mode:             c.Mode,
		Status:           c.Status(),
		SyncedCount:      c.Counters.Synced,
		CreatedCount:     c.Counters.Created,
		UpdatedCount:     c.Counters.Updated,
		ProcessosNumeros: c.Counters.ProcessosNumeros,
		Error:            c.Error,
		CreatedAt:        c.CreatedAt,
		StartedAt:        c.StartedAt,
		FinishedAt:       c.FinishedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if w, ok := c.Captcha(); ok {
		v.CaptchaID = w.CaptchaID
		v.CaptchaImage = w.CaptchaImage
	}
	return v
}
