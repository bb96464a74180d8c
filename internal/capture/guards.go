package capture

import (
	"fmt"
	"strings"
	"time"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
	Err     error  // Sentinel describing the refusal
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%w: %s", r.Err, r.Reason)
	}
	return fmt.Errorf("%s", r.Reason)
}

func allow() GuardResult {
	return GuardResult{Allowed: true}
}

// Stale reports whether an active state stopped making progress before the cutoff.
// A zero staleAfter disables expiry.
func Stale(state SyncState, now time.Time, staleAfter time.Duration) bool {
	if !state.Active() || staleAfter <= 0 {
		return false
	}
	return state.UpdatedAt.Before(now.Add(-staleAfter))
}

// CanStart evaluates whether a new sync may be created next to the caller's
// latest state.
// Rule: an active state blocks a new sync unless it went stale.
func CanStart(latest *SyncState, now time.Time, staleAfter time.Duration) GuardResult {
	if latest == nil || !latest.Active() || Stale(*latest, now, staleAfter) {
		return allow()
	}
	if _, ok := latest.Captcha(); ok {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s is waiting for a captcha answer", latest.SyncID),
			Err:    ErrAwaitingCaptcha,
		}
	}
	return GuardResult{
		Reason: fmt.Sprintf("sync %s is %s", latest.SyncID, strings.ToLower(string(latest.Status()))),
		Err:    ErrSyncInProgress,
	}
}

// CanResolveCaptcha evaluates whether an answer may be accepted for state.
// Rule: only WAITING_CAPTCHA with a challenge id accepts answers, and an
// explicit captchaID must match the stored one.
func CanResolveCaptcha(state SyncState, captchaID string) GuardResult {
	w, ok := state.Captcha()
	if !ok || strings.TrimSpace(w.CaptchaID) == "" {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s is %s", state.SyncID, state.Status()),
			Err:    ErrNotWaitingForCaptcha,
		}
	}
	if captchaID != "" && captchaID != w.CaptchaID {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s expects captcha %s", state.SyncID, w.CaptchaID),
			Err:    ErrCaptchaMismatch,
		}
	}
	return allow()
}

// CanRun evaluates whether a worker may pick up job for state.
// Rule: each QUEUED phase admits exactly one transition to RUNNING, and only
// for the job that continues it: the modes must agree, and a CAPTCHA job must
// answer the challenge the phase was queued for.
func CanRun(state SyncState, job JobPayload) GuardResult {
	q, ok := state.Phase.(Queued)
	if !ok && state.Phase != nil {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s is %s, not %s", state.SyncID, state.Status(), StatusQueued),
		}
	}
	if job.Mode != state.Mode {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s is queued in %s mode, job is %s", state.SyncID, state.Mode, job.Mode),
		}
	}
	if state.Mode == ModeCaptcha && job.CaptchaID != q.AnsweredCaptchaID {
		return GuardResult{
			Reason: fmt.Sprintf("sync %s continues captcha %s, job answers %s", state.SyncID, q.AnsweredCaptchaID, job.CaptchaID),
		}
	}
	return allow()
}
