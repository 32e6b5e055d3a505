//go:build !windows

package browser

import "errors"

// dpapiUnprotect is Windows-only; the chromium decryptor never reaches it on
// other platforms.
func dpapiUnprotect([]byte) ([]byte, error) {
	return nil, errors.New("browser: DPAPI not available on this platform")
}
