// Package browser extracts and decrypts session cookies from an installed
// browser's on-disk cookie store. This is the historical acquisition path:
// it works without any user interaction, but reading another process's
// cookie database is exactly the behavior pattern antivirus heuristics flag,
// so the strategy chain only runs it when explicitly enabled.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/quotabar/quotabar/internal/core"
)

var (
	// ErrNoCookies means the store was readable but held nothing for the
	// target domains.
	ErrNoCookies = errors.New("browser: no cookies found for target domains")
	// ErrNoSessionCookies means cookies were found but none of the known
	// session cookie names were among them.
	ErrNoSessionCookies = errors.New("browser: no session cookies found (not signed in?)")
	// ErrUnsupported means no importer can handle the requested browser on
	// this platform.
	ErrUnsupported = errors.New("browser: unsupported browser or platform")
)

// Cookie is one decrypted row from a browser cookie store.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// Importer reads session cookies for a fixed set of target domains and
// assembles them into a cookie-header credential.
type Importer struct {
	domains       []string
	sessionNames  []string
	requiredNames []string

	now func() time.Time
}

// NewImporter targets the default remote service domains and session cookie
// names.
func NewImporter() *Importer {
	return &Importer{
		domains: []string{"claude.ai"},
		sessionNames: []string{
			"sessionKey",
			"cf_clearance",
			"anthropic-device-id",
			"lastActiveOrg",
			"__cf_bm",
		},
		requiredNames: []string{"sessionKey"},
		now:           time.Now,
	}
}

// Available reports whether the browser's cookie store exists on disk. Used
// by the strategy chain's CanExecute without paying for a full import.
func (im *Importer) Available(browserName string) bool {
	switch browserFamily(browserName) {
	case familyChromium:
		p, err := chromiumProfile(browserName)
		return err == nil && p.cookiesExist()
	case familyFirefox:
		_, err := firefoxCookiesPath()
		return err == nil
	default:
		// kooky discovers stores lazily; assume available and let the
		// import report the real outcome.
		return true
	}
}

// ImportSession reads, decrypts and assembles the session cookies from the
// given browser into a Session. Individual rows that fail to decrypt are
// skipped, never aborting the import; only the known session cookie names
// decide success.
func (im *Importer) ImportSession(ctx context.Context, browserName string) (*core.Session, error) {
	var (
		cookies []Cookie
		err     error
	)
	switch browserFamily(browserName) {
	case familyChromium:
		cookies, err = im.readChromium(ctx, browserName)
	case familyFirefox:
		cookies, err = im.readFirefox(ctx)
	default:
		cookies, err = im.readWithKooky(ctx, browserName)
	}
	if err != nil {
		return nil, err
	}

	header, ok := im.sessionHeader(cookies)
	if !ok {
		if len(cookies) == 0 {
			return nil, ErrNoCookies
		}
		return nil, ErrNoSessionCookies
	}

	return &core.Session{
		Credential:  header,
		SourceLabel: "cookies:" + strings.ToLower(strings.TrimSpace(browserName)),
		StoredAt:    im.now(),
		AccountHint: accountHint(cookies),
	}, nil
}

// sessionHeader concatenates the known session cookies, in a stable order,
// into "name=value; name2=value2" form. Reports false when none of the
// required names were present.
func (im *Importer) sessionHeader(cookies []Cookie) (string, bool) {
	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = c.Value
		}
	}

	hasRequired := lo.SomeBy(im.requiredNames, func(name string) bool {
		_, ok := byName[name]
		return ok
	})
	if !hasRequired {
		return "", false
	}

	parts := lo.FilterMap(im.sessionNames, func(name string, _ int) (string, bool) {
		v, ok := byName[name]
		return name + "=" + v, ok && v != ""
	})
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "; "), true
}

func accountHint(cookies []Cookie) string {
	for _, c := range cookies {
		if c.Name == "lastActiveOrg" {
			return c.Value
		}
	}
	return ""
}

// matchesDomain reports whether a cookie host belongs to a target domain,
// accepting the leading-dot form cookie stores use.
func (im *Importer) matchesDomain(host string) bool {
	host = strings.TrimPrefix(host, ".")
	for _, d := range im.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type family int

const (
	familyChromium family = iota
	familyFirefox
	familyOther
)

func browserFamily(name string) family {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chrome", "chromium", "edge", "brave":
		return familyChromium
	case "firefox":
		return familyFirefox
	default:
		return familyOther
	}
}

func expiryValid(expires time.Time, now time.Time) bool {
	return expires.IsZero() || expires.After(now)
}

func domainFilterClause(column string, domains []string) (string, []interface{}) {
	clauses := make([]string, len(domains))
	args := make([]interface{}, len(domains))
	for i, d := range domains {
		clauses[i] = column + " LIKE ?"
		args[i] = "%" + d
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}
