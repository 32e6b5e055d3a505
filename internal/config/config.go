package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type CookieImportConfig struct {
	// Enabled gates the cookie-import strategy in the acquisition chain.
	// Off by default: reading browser cookie stores trips antivirus
	// heuristics, so it is an explicit opt-in.
	Enabled bool   `json:"enabled"`
	Browser string `json:"browser"`
}

type Config struct {
	RefreshIntervalSeconds int                `json:"refresh_interval_seconds"`
	APIBaseURL             string             `json:"api_base_url,omitempty"`
	CookieImport           CookieImportConfig `json:"cookie_import"`
}

func DefaultConfig() Config {
	return Config{
		RefreshIntervalSeconds: 60,
		CookieImport: CookieImportConfig{
			Enabled: false,
			Browser: "chrome",
		},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "quotabar")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "quotabar")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// SessionMetadataPath is the cleartext sidecar next to the keyring secret.
func SessionMetadataPath() string {
	return filepath.Join(ConfigDir(), "session.json")
}

// LegacyCredentialPath is where a prior version kept the credential in
// plaintext. It is migrated away on first run of the session store.
func LegacyCredentialPath() string {
	return filepath.Join(ConfigDir(), "credential.txt")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = DefaultConfig().RefreshIntervalSeconds
	}
	if cfg.CookieImport.Browser == "" {
		cfg.CookieImport.Browser = DefaultConfig().CookieImport.Browser
	}

	return cfg, nil
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveCookieImport persists the cookie-import settings (read-modify-write).
func SaveCookieImport(ci CookieImportConfig) error {
	return SaveCookieImportTo(ConfigPath(), ci)
}

func SaveCookieImportTo(path string, ci CookieImportConfig) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.CookieImport = ci
	return SaveTo(path, cfg)
}
