package core

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Session is the credential plus its provenance. The credential itself lives
// in the OS secret store at rest; Session values only exist in process.
type Session struct {
	Credential  string
	SourceLabel string
	StoredAt    time.Time
	AccountHint string
}

// SessionMetadata is the cleartext sidecar persisted next to the secret. It
// is never sufficient to reconstruct the credential: CredentialHash is a
// one-way digest used only for integrity checks.
type SessionMetadata struct {
	SourceLabel    string    `json:"source_label"`
	StoredAt       time.Time `json:"stored_at"`
	AccountHint    string    `json:"account_hint,omitempty"`
	CredentialHash string    `json:"credential_hash"`
}

// HashCredential returns the base64-encoded SHA-256 digest of a credential.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Matches reports whether the sidecar hash corresponds to the credential.
func (m SessionMetadata) Matches(credential string) bool {
	return m.CredentialHash != "" && m.CredentialHash == HashCredential(credential)
}

func (s Session) Metadata() SessionMetadata {
	return SessionMetadata{
		SourceLabel:    s.SourceLabel,
		StoredAt:       s.StoredAt,
		AccountHint:    s.AccountHint,
		CredentialHash: HashCredential(s.Credential),
	}
}
