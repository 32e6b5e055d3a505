package browser

import (
	"context"
	"log"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"
)

// readWithKooky is the fallback for browsers the hand-written importers do
// not cover: kooky discovers and decrypts whatever stores it knows about,
// optionally narrowed to one browser by name.
func (im *Importer) readWithKooky(ctx context.Context, browserName string) ([]Cookie, error) {
	name := strings.ToLower(strings.TrimSpace(browserName))

	var out []Cookie
	for _, domain := range im.domains {
		cookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
		if err != nil {
			// Partial results are fine; individual stores may be locked or
			// undecryptable without sinking the whole import.
			log.Printf("[browser] kooky read for %s: %v", domain, err)
		}
		for _, c := range cookies {
			if name != "" && name != "auto" && !strings.Contains(strings.ToLower(c.Browser.Browser()), name) {
				continue
			}
			out = append(out, Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HTTPOnly: c.HttpOnly,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCookies
	}
	return out, nil
}
