package browser

import (
	"strings"
	"testing"
	"time"
)

func TestSessionHeader_AssemblesKnownCookies(t *testing.T) {
	im := NewImporter()

	header, ok := im.sessionHeader([]Cookie{
		{Name: "cf_clearance", Value: "cf-val"},
		{Name: "sessionKey", Value: "sk-val"},
		{Name: "irrelevant", Value: "junk"},
	})
	if !ok {
		t.Fatal("expected a session header")
	}
	if !strings.Contains(header, "sessionKey=sk-val") {
		t.Errorf("missing session cookie: %q", header)
	}
	if !strings.Contains(header, "cf_clearance=cf-val") {
		t.Errorf("missing clearance cookie: %q", header)
	}
	if strings.Contains(header, "irrelevant") {
		t.Errorf("unknown cookie leaked into the credential: %q", header)
	}
	// Stable order: sessionKey is listed first in the known-name set.
	if !strings.HasPrefix(header, "sessionKey=") {
		t.Errorf("unexpected cookie order: %q", header)
	}
}

func TestSessionHeader_RequiresSessionCookie(t *testing.T) {
	im := NewImporter()

	// Cookies present, but none of the required session names.
	if _, ok := im.sessionHeader([]Cookie{
		{Name: "cf_clearance", Value: "cf-val"},
		{Name: "__cf_bm", Value: "bm-val"},
	}); ok {
		t.Error("header without the required session cookie should report not found")
	}

	if _, ok := im.sessionHeader(nil); ok {
		t.Error("empty cookie set should report not found")
	}
}

func TestMatchesDomain(t *testing.T) {
	im := NewImporter()

	for _, host := range []string{"claude.ai", ".claude.ai", "app.claude.ai"} {
		if !im.matchesDomain(host) {
			t.Errorf("host %q should match target domains", host)
		}
	}
	for _, host := range []string{"notclaude.ai", "claude.ai.evil.com", "example.com"} {
		if im.matchesDomain(host) {
			t.Errorf("host %q should not match target domains", host)
		}
	}
}

func TestBrowserFamily(t *testing.T) {
	cases := map[string]family{
		"chrome":   familyChromium,
		"Chrome":   familyChromium,
		"edge":     familyChromium,
		"brave":    familyChromium,
		"chromium": familyChromium,
		"firefox":  familyFirefox,
		"safari":   familyOther,
		"":         familyOther,
	}
	for name, want := range cases {
		if got := browserFamily(name); got != want {
			t.Errorf("browserFamily(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExpiryValid(t *testing.T) {
	now := time.Now()
	if !expiryValid(time.Time{}, now) {
		t.Error("session cookies with no expiry are valid")
	}
	if !expiryValid(now.Add(time.Hour), now) {
		t.Error("future expiry is valid")
	}
	if expiryValid(now.Add(-time.Hour), now) {
		t.Error("past expiry is invalid")
	}
}
