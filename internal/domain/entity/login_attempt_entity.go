package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AttemptResult is the outcome of one login call.
type AttemptResult string

const (
	AttemptSuccess AttemptResult = "success"
	AttemptFailed  AttemptResult = "failed"
	AttemptBlocked AttemptResult = "blocked"
)

// Failure reason codes written to the attempt ledger.
const (
	ReasonUserNotFound          = "user_not_found"
	ReasonAccountLocked         = "account_locked"
	ReasonTooManyFailedAttempts = "too_many_failed_attempts"
	ReasonAccountInactive       = "account_inactive"
	ReasonCredentialMissing     = "credential_missing"
	ReasonInvalidPassword       = "invalid_password"
	ReasonInternalError         = "internal_error"
)

// LoginAttempt is an immutable audit entry. UserID is nil when the submitted
// email did not resolve to a user.
type LoginAttempt struct {
	ID            string
	UserID        *string
	Email         string
	IPAddress     string
	UserAgent     string
	Result        AttemptResult
	FailureReason string
	AttemptedAt   time.Time
	// LockedUntil is the lockout expiry on blocked outcomes. It travels on the
	// published event; the login_attempts table has no column for it.
	LockedUntil *time.Time
}

// Column widths of the login_attempts table.
const (
	MaxAttemptEmailLen     = 255
	MaxAttemptIPLen        = 45
	MaxAttemptUserAgentLen = 500
	MaxAttemptReasonLen    = 100
)

// Sanitize forces client supplied text into what the store accepts, so an
// oversized or malformed header can never keep an attempt out of the ledger.
func (a *LoginAttempt) Sanitize() {
	a.Email = ClipText(a.Email, MaxAttemptEmailLen)
	a.IPAddress = ClipText(a.IPAddress, MaxAttemptIPLen)
	a.UserAgent = ClipText(a.UserAgent, MaxAttemptUserAgentLen)
	a.FailureReason = ClipText(a.FailureReason, MaxAttemptReasonLen)
}

// ClipText returns s as valid UTF-8 without NUL bytes, at most limit bytes long
// and cut on a rune boundary.
func ClipText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
