package browser

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// chromiumEpochOffset converts Chromium timestamps (microseconds since
// 1601-01-01) to Unix seconds.
const chromiumEpochOffset = 11644473600

type chromiumPaths struct {
	cookies         []string // candidate cookie DB locations, first hit wins
	localState      string   // windows master-key container
	keychainService string   // darwin safe-storage item
	keychainAccount string
}

func (p chromiumPaths) cookiesExist() bool {
	_, err := p.cookiesPath()
	return err == nil
}

func (p chromiumPaths) cookiesPath() (string, error) {
	for _, candidate := range p.cookies {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("browser: cookie database not found (checked %s)", strings.Join(p.cookies, ", "))
}

// chromiumProfile resolves the default installation locations for a
// Chromium-family browser on the current platform.
func chromiumProfile(browserName string) (chromiumPaths, error) {
	name := strings.ToLower(strings.TrimSpace(browserName))

	var userData string
	var service, account string
	switch runtime.GOOS {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		switch name {
		case "chrome":
			userData = filepath.Join(local, "Google", "Chrome", "User Data")
		case "edge":
			userData = filepath.Join(local, "Microsoft", "Edge", "User Data")
		case "brave":
			userData = filepath.Join(local, "BraveSoftware", "Brave-Browser", "User Data")
		case "chromium":
			userData = filepath.Join(local, "Chromium", "User Data")
		}
	case "darwin":
		home, _ := os.UserHomeDir()
		appSupport := filepath.Join(home, "Library", "Application Support")
		switch name {
		case "chrome":
			userData = filepath.Join(appSupport, "Google", "Chrome")
			service, account = "Chrome Safe Storage", "Chrome"
		case "edge":
			userData = filepath.Join(appSupport, "Microsoft Edge")
			service, account = "Microsoft Edge Safe Storage", "Microsoft Edge"
		case "brave":
			userData = filepath.Join(appSupport, "BraveSoftware", "Brave-Browser")
			service, account = "Brave Safe Storage", "Brave"
		case "chromium":
			userData = filepath.Join(appSupport, "Chromium")
			service, account = "Chromium Safe Storage", "Chromium"
		}
	default:
		home, _ := os.UserHomeDir()
		cfg := filepath.Join(home, ".config")
		switch name {
		case "chrome":
			userData = filepath.Join(cfg, "google-chrome")
		case "edge":
			userData = filepath.Join(cfg, "microsoft-edge")
		case "brave":
			userData = filepath.Join(cfg, "BraveSoftware", "Brave-Browser")
		case "chromium":
			userData = filepath.Join(cfg, "chromium")
		}
	}
	if userData == "" {
		return chromiumPaths{}, ErrUnsupported
	}

	return chromiumPaths{
		cookies: []string{
			filepath.Join(userData, "Default", "Network", "Cookies"),
			filepath.Join(userData, "Default", "Cookies"),
		},
		localState:      filepath.Join(userData, "Local State"),
		keychainService: service,
		keychainAccount: account,
	}, nil
}

// readChromium copies the cookie database aside, loads the per-browser
// master key, and decrypts the rows matching the target domains.
func (im *Importer) readChromium(ctx context.Context, browserName string) ([]Cookie, error) {
	profile, err := chromiumProfile(browserName)
	if err != nil {
		return nil, err
	}
	dbPath, err := profile.cookiesPath()
	if err != nil {
		return nil, err
	}

	decrypt, err := chromiumDecryptor(profile)
	if err != nil {
		return nil, err
	}

	return im.readChromiumDB(ctx, dbPath, decrypt)
}

// readChromiumDB queries a copy of the cookie DB. Exposed separately so
// tests can inject a fabricated database and decryptor.
func (im *Importer) readChromiumDB(ctx context.Context, dbPath string, decrypt func([]byte) (string, error)) ([]Cookie, error) {
	// The live browser holds an exclusive lock on the original; always work
	// on a temp copy and always remove it.
	tmpPath, err := copyToTemp(dbPath, "quotabar-cookies-*.db")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("browser: opening cookies DB: %w", err)
	}
	defer db.Close()

	where, args := domainFilterClause("host_key", im.domains)
	query := `SELECT name, encrypted_value, host_key, path, expires_utc, is_secure, is_httponly
		FROM cookies WHERE ` + where

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: querying cookies: %w", err)
	}
	defer rows.Close()

	now := im.now()
	var out []Cookie
	for rows.Next() {
		var (
			name, hostKey, path  string
			encValue             []byte
			expiresUTC           int64
			isSecure, isHTTPOnly int
		)
		if err := rows.Scan(&name, &encValue, &hostKey, &path, &expiresUTC, &isSecure, &isHTTPOnly); err != nil {
			continue
		}
		if !im.matchesDomain(hostKey) {
			continue
		}

		expires := chromiumTime(expiresUTC)
		if !expiryValid(expires, now) {
			continue
		}

		value, err := decrypt(encValue)
		if err != nil {
			// One undecryptable row must not abort the import.
			log.Printf("[browser] skipping cookie %s: %v", name, err)
			continue
		}

		out = append(out, Cookie{
			Name:     name,
			Value:    value,
			Domain:   hostKey,
			Path:     path,
			Expires:  expires,
			Secure:   isSecure != 0,
			HTTPOnly: isHTTPOnly != 0,
		})
	}
	return out, rows.Err()
}

// chromiumDecryptor builds the per-row decrypt function for this platform.
func chromiumDecryptor(profile chromiumPaths) (func([]byte) (string, error), error) {
	switch runtime.GOOS {
	case "windows":
		masterKey, err := windowsMasterKey(profile.localState)
		if err != nil {
			return nil, err
		}
		return func(enc []byte) (string, error) {
			if hasVersionPrefix(enc) {
				return decryptGCM(masterKey, enc[3:])
			}
			// Legacy rows are whole-blob DPAPI, no version tag.
			plain, err := dpapiUnprotect(enc)
			if err != nil {
				return "", err
			}
			return string(plain), nil
		}, nil
	case "darwin":
		key, err := darwinMasterKey(profile.keychainService, profile.keychainAccount)
		if err != nil {
			return nil, err
		}
		return func(enc []byte) (string, error) {
			if !hasVersionPrefix(enc) {
				return "", fmt.Errorf("unexpected cookie encryption version")
			}
			return decryptCBC(key, enc[3:])
		}, nil
	default:
		return nil, ErrUnsupported
	}
}

// windowsMasterKey recovers the browser's AES key: the Local State JSON
// carries it base64-encoded, framed with a 5-byte "DPAPI" prefix, protected
// by the per-user data-protection API.
func windowsMasterKey(localStatePath string) ([]byte, error) {
	data, err := os.ReadFile(localStatePath)
	if err != nil {
		return nil, fmt.Errorf("browser: reading Local State: %w", err)
	}

	var state struct {
		OSCrypt struct {
			EncryptedKey string `json:"encrypted_key"`
		} `json:"os_crypt"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("browser: parsing Local State: %w", err)
	}
	if state.OSCrypt.EncryptedKey == "" {
		return nil, fmt.Errorf("browser: Local State has no os_crypt key")
	}

	blob, err := base64.StdEncoding.DecodeString(state.OSCrypt.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("browser: decoding encrypted key: %w", err)
	}

	const framing = "DPAPI"
	if len(blob) <= len(framing) || string(blob[:len(framing)]) != framing {
		return nil, fmt.Errorf("browser: encrypted key missing DPAPI framing")
	}

	key, err := dpapiUnprotect(blob[len(framing):])
	if err != nil {
		return nil, fmt.Errorf("browser: unprotecting master key: %w", err)
	}
	return key, nil
}

func chromiumTime(expiresUTC int64) time.Time {
	if expiresUTC == 0 {
		return time.Time{}
	}
	secs := expiresUTC/1e6 - chromiumEpochOffset
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

func copyToTemp(srcPath, pattern string) (string, error) {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("browser: creating temp copy: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	data, err := os.ReadFile(srcPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("browser: reading cookie DB: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("browser: writing temp copy: %w", err)
	}
	return tmpPath, nil
}
