package browser

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/ini.v1"
)

// Firefox stores cookie values in plaintext; the only work is finding the
// default profile and querying moz_cookies.

func firefoxRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Mozilla", "Firefox"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox"), nil
	default:
		return filepath.Join(home, ".mozilla", "firefox"), nil
	}
}

// firefoxCookiesPath resolves cookies.sqlite inside the default profile,
// chosen from profiles.ini (Default=1 wins, else the first profile listed).
func firefoxCookiesPath() (string, error) {
	root, err := firefoxRoot()
	if err != nil {
		return "", err
	}

	iniPath := filepath.Join(root, "profiles.ini")
	cfg, err := ini.Load(iniPath)
	if err != nil {
		return "", fmt.Errorf("browser: reading %s: %w", iniPath, err)
	}

	var fallback string
	for _, section := range cfg.Sections() {
		if !strings.HasPrefix(section.Name(), "Profile") {
			continue
		}
		path := section.Key("Path").String()
		if path == "" {
			continue
		}
		if section.Key("IsRelative").MustInt(1) == 1 {
			path = filepath.Join(root, path)
		}
		if section.Key("Default").MustInt(0) == 1 {
			fallback = path
			break
		}
		if fallback == "" {
			fallback = path
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("browser: no Firefox profile found in %s", iniPath)
	}

	cookies := filepath.Join(fallback, "cookies.sqlite")
	if _, err := os.Stat(cookies); err != nil {
		return "", fmt.Errorf("browser: Firefox cookie database not found: %w", err)
	}
	return cookies, nil
}

func (im *Importer) readFirefox(ctx context.Context) ([]Cookie, error) {
	dbPath, err := firefoxCookiesPath()
	if err != nil {
		return nil, err
	}
	return im.readFirefoxDB(ctx, dbPath)
}

func (im *Importer) readFirefoxDB(ctx context.Context, dbPath string) ([]Cookie, error) {
	tmpPath, err := copyToTemp(dbPath, "quotabar-moz-cookies-*.sqlite")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("browser: opening Firefox cookies DB: %w", err)
	}
	defer db.Close()

	where, args := domainFilterClause("host", im.domains)
	query := `SELECT name, value, host, path, expiry, isSecure, isHttpOnly
		FROM moz_cookies WHERE ` + where

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: querying Firefox cookies: %w", err)
	}
	defer rows.Close()

	now := im.now()
	var out []Cookie
	for rows.Next() {
		var (
			name, value, host, path string
			expiry                  int64
			isSecure, isHTTPOnly    int
		)
		if err := rows.Scan(&name, &value, &host, &path, &expiry, &isSecure, &isHTTPOnly); err != nil {
			continue
		}
		if !im.matchesDomain(host) {
			continue
		}

		var expires time.Time
		if expiry > 0 {
			expires = time.Unix(expiry, 0)
		}
		if !expiryValid(expires, now) {
			continue
		}

		out = append(out, Cookie{
			Name:     name,
			Value:    value,
			Domain:   host,
			Path:     path,
			Expires:  expires,
			Secure:   isSecure != 0,
			HTTPOnly: isHTTPOnly != 0,
		})
	}
	return out, rows.Err()
}
