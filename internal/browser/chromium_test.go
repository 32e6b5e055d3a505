package browser

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeCookieDB fabricates a Chromium-shaped cookie database.
func writeCookieDB(t *testing.T, rows [][]interface{}) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "Cookies")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cookies (
		name TEXT, encrypted_value BLOB, host_key TEXT, path TEXT,
		expires_utc INTEGER, is_secure INTEGER, is_httponly INTEGER)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}

	for _, row := range rows {
		_, err := db.Exec(`INSERT INTO cookies VALUES (?, ?, ?, ?, ?, ?, ?)`, row...)
		if err != nil {
			t.Fatalf("inserting row: %v", err)
		}
	}
	return dbPath
}

func chromiumExpiry(tm time.Time) int64 {
	return (tm.Unix() + chromiumEpochOffset) * 1e6
}

func TestReadChromiumDB_DecryptsMatchingRows(t *testing.T) {
	key := randomKey(t)
	future := chromiumExpiry(time.Now().Add(24 * time.Hour))

	dbPath := writeCookieDB(t, [][]interface{}{
		{"sessionKey", append([]byte("v10"), sealGCM(t, key, "sk-session-value")...), ".claude.ai", "/", future, 1, 1},
		{"cf_clearance", append([]byte("v10"), sealGCM(t, key, "cf-value")...), ".claude.ai", "/", future, 1, 0},
		{"unrelated", append([]byte("v10"), sealGCM(t, key, "other")...), ".example.com", "/", future, 0, 0},
	})

	im := NewImporter()
	decrypt := func(enc []byte) (string, error) { return decryptGCM(key, enc[3:]) }

	cookies, err := im.readChromiumDB(context.Background(), dbPath, decrypt)
	if err != nil {
		t.Fatalf("readChromiumDB: %v", err)
	}

	byName := map[string]string{}
	for _, c := range cookies {
		byName[c.Name] = c.Value
	}
	if byName["sessionKey"] != "sk-session-value" {
		t.Errorf("sessionKey = %q", byName["sessionKey"])
	}
	if byName["cf_clearance"] != "cf-value" {
		t.Errorf("cf_clearance = %q", byName["cf_clearance"])
	}
	if _, ok := byName["unrelated"]; ok {
		t.Error("cookie outside the target domains should not be returned")
	}
}

func TestReadChromiumDB_SkipsUndecryptableRows(t *testing.T) {
	goodKey := randomKey(t)
	wrongKey := randomKey(t)
	future := chromiumExpiry(time.Now().Add(24 * time.Hour))

	dbPath := writeCookieDB(t, [][]interface{}{
		{"sessionKey", append([]byte("v10"), sealGCM(t, goodKey, "sk-good")...), ".claude.ai", "/", future, 1, 1},
		{"cf_clearance", append([]byte("v10"), sealGCM(t, wrongKey, "cf-bad")...), ".claude.ai", "/", future, 1, 0},
	})

	im := NewImporter()
	decrypt := func(enc []byte) (string, error) { return decryptGCM(goodKey, enc[3:]) }

	cookies, err := im.readChromiumDB(context.Background(), dbPath, decrypt)
	if err != nil {
		t.Fatalf("one bad row must not abort the import: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "sessionKey" {
		t.Errorf("expected only the decryptable row, got %+v", cookies)
	}
}

func TestReadChromiumDB_SkipsExpiredRows(t *testing.T) {
	key := randomKey(t)
	past := chromiumExpiry(time.Now().Add(-24 * time.Hour))

	dbPath := writeCookieDB(t, [][]interface{}{
		{"sessionKey", append([]byte("v10"), sealGCM(t, key, "sk-stale")...), ".claude.ai", "/", past, 1, 1},
	})

	im := NewImporter()
	decrypt := func(enc []byte) (string, error) { return decryptGCM(key, enc[3:]) }

	cookies, err := im.readChromiumDB(context.Background(), dbPath, decrypt)
	if err != nil {
		t.Fatalf("readChromiumDB: %v", err)
	}
	if len(cookies) != 0 {
		t.Errorf("expired cookie should be skipped, got %+v", cookies)
	}
}

func TestReadChromiumDB_RemovesTempCopy(t *testing.T) {
	key := randomKey(t)
	dbPath := writeCookieDB(t, nil)

	before := tempFileCount(t)
	im := NewImporter()
	decrypt := func(enc []byte) (string, error) { return decryptGCM(key, enc[3:]) }
	if _, err := im.readChromiumDB(context.Background(), dbPath, decrypt); err != nil {
		t.Fatalf("readChromiumDB: %v", err)
	}
	if after := tempFileCount(t); after != before {
		t.Errorf("temp cookie copies leaked: %d -> %d", before, after)
	}
}

func tempFileCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "quotabar-cookies-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return len(matches)
}

func TestWindowsMasterKey_RejectsBadFraming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Local State")
	// base64("NOPEkeybytes") has no DPAPI framing prefix.
	if err := os.WriteFile(path, []byte(`{"os_crypt":{"encrypted_key":"Tk9QRWtleWJ5dGVz"}}`), 0o600); err != nil {
		t.Fatalf("writing local state: %v", err)
	}

	_, err := windowsMasterKey(path)
	if err == nil || !strings.Contains(err.Error(), "DPAPI framing") {
		t.Errorf("expected framing error, got %v", err)
	}
}

func TestWindowsMasterKey_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Local State")
	if err := os.WriteFile(path, []byte(`{"os_crypt":{}}`), 0o600); err != nil {
		t.Fatalf("writing local state: %v", err)
	}

	if _, err := windowsMasterKey(path); err == nil {
		t.Error("expected error for Local State without os_crypt key")
	}
}
