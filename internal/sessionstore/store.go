// Package sessionstore persists the session credential in the OS keyring
// with a cleartext metadata sidecar for provenance and integrity checks. The
// credential never touches plain file storage.
package sessionstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/quotabar/quotabar/internal/config"
	"github.com/quotabar/quotabar/internal/core"
)

const (
	keyringService = "quotabar"
	keyringUser    = "session"

	// cacheTTL bounds how long the in-process Session copy is trusted
	// before re-reading the keyring. Independent of the usage cache TTL.
	cacheTTL = 5 * time.Minute
)

// ErrIntegrity signals that the keyring credential no longer matches the
// sidecar hash. Callers should force re-authentication, never auto-repair.
var ErrIntegrity = errors.New("sessionstore: credential hash mismatch")

type Store struct {
	mu          sync.Mutex
	service     string
	sidecarPath string
	legacyPath  string

	cached   *core.Session
	cachedAt time.Time

	now func() time.Time
}

// New builds a store over the default config-dir paths and migrates any
// legacy plaintext credential file away before first use.
func New() *Store {
	s := NewWithPaths(config.SessionMetadataPath(), config.LegacyCredentialPath())
	s.migrateLegacy()
	return s
}

// NewWithPaths builds a store with explicit sidecar/legacy locations.
func NewWithPaths(sidecarPath, legacyPath string) *Store {
	return &Store{
		service:     keyringService,
		sidecarPath: sidecarPath,
		legacyPath:  legacyPath,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Set writes the credential to the keyring and the metadata sidecar next to
// it, then refreshes the in-process copy.
func (s *Store) Set(sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.StoredAt.IsZero() {
		sess.StoredAt = s.now()
	}

	if err := keyring.Set(s.service, keyringUser, sess.Credential); err != nil {
		return fmt.Errorf("sessionstore: writing secret: %w", err)
	}
	if err := s.writeSidecar(sess.Metadata()); err != nil {
		return err
	}

	copied := sess
	s.cached = &copied
	s.cachedAt = s.now()
	return nil
}

// Get returns the current session, or (nil, nil) when none is stored. The
// in-process copy is served while younger than cacheTTL; otherwise the
// keyring and sidecar are re-read. A missing or corrupt sidecar degrades to
// sensible metadata defaults rather than failing the read.
func (s *Store) Get() (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.cachedAt) < cacheTTL {
		copied := *s.cached
		return &copied, nil
	}

	credential, err := keyring.Get(s.service, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			s.cached = nil
			return nil, nil
		}
		return nil, fmt.Errorf("sessionstore: reading secret: %w", err)
	}

	meta := s.readSidecar()
	sess := core.Session{
		Credential:  credential,
		SourceLabel: meta.SourceLabel,
		StoredAt:    meta.StoredAt,
		AccountHint: meta.AccountHint,
	}

	copied := sess
	s.cached = &copied
	s.cachedAt = s.now()
	return &sess, nil
}

// Clear deletes the keyring entry and sidecar and drops the in-process copy.
// In-memory zeroing is best effort: Go strings are immutable, so copies made
// by the runtime or the keyring layer cannot be scrubbed. Known limitation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	s.cachedAt = time.Time{}

	var firstErr error
	if err := keyring.Delete(s.service, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		firstErr = fmt.Errorf("sessionstore: deleting secret: %w", err)
	}
	if err := os.Remove(s.sidecarPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("sessionstore: removing sidecar: %w", err)
	}
	return firstErr
}

// Validate recomputes the stored credential's hash against the sidecar. A
// mismatch means tampering or corruption; the caller should treat it as a
// re-authentication trigger.
func (s *Store) Validate() error {
	s.mu.Lock()
	credential, err := keyring.Get(s.service, keyringUser)
	meta := s.readSidecar()
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("sessionstore: reading secret: %w", err)
	}
	if !meta.Matches(credential) {
		return ErrIntegrity
	}
	return nil
}

func (s *Store) writeSidecar(meta core.SessionMetadata) error {
	dir := filepath.Dir(s.sidecarPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sessionstore: creating sidecar dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshaling sidecar: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.sidecarPath, data, 0o600); err != nil {
		return fmt.Errorf("sessionstore: writing sidecar: %w", err)
	}
	return nil
}

func (s *Store) readSidecar() core.SessionMetadata {
	meta := core.SessionMetadata{SourceLabel: "unknown"}

	data, err := os.ReadFile(s.sidecarPath)
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Printf("[sessionstore] corrupt sidecar %s: %v", s.sidecarPath, err)
		return core.SessionMetadata{SourceLabel: "unknown"}
	}
	if meta.SourceLabel == "" {
		meta.SourceLabel = "unknown"
	}
	return meta
}

// Metadata returns the sidecar contents without touching the secret store.
func (s *Store) Metadata() core.SessionMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSidecar()
}

// migrateLegacy securely disposes of a plaintext credential file left by a
// prior version: overwrite with random bytes, then delete.
func (s *Store) migrateLegacy() {
	info, err := os.Stat(s.legacyPath)
	if err != nil {
		return
	}

	if size := info.Size(); size > 0 {
		junk := make([]byte, size)
		if _, err := rand.Read(junk); err == nil {
			if err := os.WriteFile(s.legacyPath, junk, 0o600); err != nil {
				log.Printf("[sessionstore] overwriting legacy credential file: %v", err)
			}
		}
	}
	if err := os.Remove(s.legacyPath); err != nil {
		log.Printf("[sessionstore] removing legacy credential file: %v", err)
		return
	}
	log.Printf("[sessionstore] migrated legacy plaintext credential file")
}
