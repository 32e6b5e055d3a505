package core

import (
	"errors"
	"time"
)

type ErrorKind string

const (
	ErrNeedsReauth  ErrorKind = "NEEDS_REAUTH"
	ErrNetwork      ErrorKind = "NETWORK_ERROR"
	ErrParse        ErrorKind = "PARSE_ERROR"
	ErrNoCredential ErrorKind = "NO_CREDENTIAL"
	ErrRateLimited  ErrorKind = "RATE_LIMITED"
)

// ErrorInfo is the user-facing failure attached to a snapshot. Every kind
// carries a remediation hint so the caller can render degraded state without
// mapping kinds itself.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

func NewErrorInfo(kind ErrorKind, message string) *ErrorInfo {
	return &ErrorInfo{Kind: kind, Message: message, Hint: hintFor(kind)}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case ErrNeedsReauth:
		return "Sign in again or paste a fresh session credential (quotabar session set)."
	case ErrNetwork:
		return "Check your connection; cached data is shown when available."
	case ErrParse:
		return "The service returned an unexpected response; try again later."
	case ErrNoCredential:
		return "Run 'quotabar session set' or enable cookie import in settings."
	case ErrRateLimited:
		return "Refreshing too often; the previous snapshot is still current."
	}
	return ""
}

// UsageSnapshot is the normalized usage result handed to callers. It is an
// immutable value: the cache replaces whole snapshots, never edits in place.
type UsageSnapshot struct {
	PrimaryPercent   float64    `json:"primary_percent"`
	SecondaryPercent *float64   `json:"secondary_percent,omitempty"`
	TertiaryPercent  *float64   `json:"tertiary_percent,omitempty"`
	CostUSD          *float64   `json:"cost_usd,omitempty"`
	ResetAt          *time.Time `json:"reset_at,omitempty"`
	PlanLabel        string     `json:"plan_label,omitempty"`
	AccountEmail     string     `json:"account_email,omitempty"`
	Error            *ErrorInfo `json:"error,omitempty"`
	IsLoading        bool       `json:"is_loading,omitempty"`
	FetchedAt        time.Time  `json:"fetched_at"`
}

func (s UsageSnapshot) OK() bool {
	return s.Error == nil && !s.IsLoading
}

// WithError returns a copy of the snapshot carrying the given failure while
// keeping the (possibly stale) usage fields intact.
func (s UsageSnapshot) WithError(info *ErrorInfo) UsageSnapshot {
	out := s
	out.Error = info
	return out
}

// ErrorSnapshot builds a bare failure snapshot for callers that have no
// prior data to fall back on.
func ErrorSnapshot(kind ErrorKind, message string, now time.Time) UsageSnapshot {
	return UsageSnapshot{
		Error:     NewErrorInfo(kind, message),
		FetchedAt: now,
	}
}

// KindError is the typed failure internal layers return. The orchestrator
// boundary converts it into an always-successful snapshot with an embedded
// ErrorInfo; raw low-level errors never escape to callers.
type KindError struct {
	Kind    ErrorKind
	Message string
}

func (e *KindError) Error() string { return e.Message }

// KindOf maps an error to its ErrorKind, defaulting to a network failure for
// untyped transport errors.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrNetwork
}
