package browser

import (
	"crypto/sha1"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// darwinMasterKey derives the Chromium cookie key from the browser's
// keychain safe-storage password: PBKDF2-SHA1, 1003 iterations, salt
// "saltysalt", 16-byte key. May trigger a keychain access prompt.
func darwinMasterKey(service, account string) ([]byte, error) {
	if service == "" || account == "" {
		return nil, ErrUnsupported
	}

	cmd := exec.Command("security", "find-generic-password", "-w", "-s", service, "-a", account)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("browser: keychain lookup for %q failed: %w", service, err)
	}
	password := strings.TrimSpace(string(out))

	return pbkdf2.Key([]byte(password), []byte("saltysalt"), 1003, 16, sha1.New), nil
}
