package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotabar/quotabar/internal/core"
)

type mockAPI struct {
	summaryStatus int
	summaryBody   string
	identityBody  string
	accountBody   string
	accountStatus int

	accountCalls atomic.Int64
	lastCookie   string
}

func (m *mockAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/usage/summary", func(w http.ResponseWriter, r *http.Request) {
		m.lastCookie = r.Header.Get("Cookie")
		if m.summaryStatus != 0 {
			w.WriteHeader(m.summaryStatus)
		}
		w.Write([]byte(m.summaryBody))
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(m.identityBody))
	})
	mux.HandleFunc("/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		m.accountCalls.Add(1)
		if m.accountStatus != 0 {
			w.WriteHeader(m.accountStatus)
		}
		w.Write([]byte(m.accountBody))
	})
	return mux
}

const goodSummary = `{
	"billing_cycle": {"starts_at": "2026-08-01T00:00:00Z", "ends_at": "2026-09-01T00:00:00Z"},
	"membership_tier": "pro",
	"plan": {"used_cents": 0, "limit_cents": 0, "utilization": 42},
	"on_demand": {"used_cents": 250, "limit_cents": 1000},
	"spend_cents": 1234
}`

const goodIdentity = `{"email": "dev@example.com", "name": "Dev", "subject_id": "acct-1"}`

func TestFetch_NormalizesSummary(t *testing.T) {
	api := &mockAPI{
		summaryBody:  goodSummary,
		identityBody: goodIdentity,
		accountBody:  `{"utilization": "17%", "resets_at": "2026-08-29T00:00:00Z"}`,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	snap, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if snap.PrimaryPercent != 42 {
		t.Errorf("PrimaryPercent = %v, want 42", snap.PrimaryPercent)
	}
	// No server-reported utilization: derived from used/limit.
	if snap.SecondaryPercent == nil || *snap.SecondaryPercent != 25 {
		t.Errorf("SecondaryPercent = %v, want 25", snap.SecondaryPercent)
	}
	if snap.CostUSD == nil || *snap.CostUSD != 12.34 {
		t.Errorf("CostUSD = %v, want 12.34", snap.CostUSD)
	}
	if snap.PlanLabel != "pro" {
		t.Errorf("PlanLabel = %q", snap.PlanLabel)
	}
	if snap.AccountEmail != "dev@example.com" {
		t.Errorf("AccountEmail = %q", snap.AccountEmail)
	}
	if snap.ResetAt == nil || !snap.ResetAt.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ResetAt = %v", snap.ResetAt)
	}
	if snap.TertiaryPercent == nil || *snap.TertiaryPercent != 17 {
		t.Errorf("TertiaryPercent = %v, want 17", snap.TertiaryPercent)
	}
	if api.lastCookie != "sessionKey=abc" {
		t.Errorf("credential not sent as Cookie header: %q", api.lastCookie)
	}
}

func TestFetch_LegacyRequestGatedOnSubjectID(t *testing.T) {
	api := &mockAPI{
		summaryBody:  goodSummary,
		identityBody: `{"email": "dev@example.com"}`,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	if _, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := api.accountCalls.Load(); n != 0 {
		t.Errorf("legacy account request issued %d times without a subject id", n)
	}
}

func TestFetch_LegacyFailureSwallowed(t *testing.T) {
	api := &mockAPI{
		summaryBody:   goodSummary,
		identityBody:  goodIdentity,
		accountStatus: http.StatusInternalServerError,
		accountBody:   "boom",
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	snap, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if err != nil {
		t.Fatalf("legacy failure must not fail the fetch: %v", err)
	}
	if snap.TertiaryPercent != nil {
		t.Errorf("TertiaryPercent should be unset on legacy failure, got %v", *snap.TertiaryPercent)
	}
	if snap.PrimaryPercent != 42 {
		t.Errorf("summary data lost: PrimaryPercent = %v", snap.PrimaryPercent)
	}
}

func TestFetch_UnauthorizedClassifiedAsReauth(t *testing.T) {
	api := &mockAPI{
		summaryStatus: http.StatusUnauthorized,
		summaryBody:   "{}",
		identityBody:  goodIdentity,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=expired")
	if core.KindOf(err) != core.ErrNeedsReauth {
		t.Errorf("401 should classify as needs-reauth, got %v", err)
	}
}

func TestFetch_ServerErrorClassifiedAsNetwork(t *testing.T) {
	api := &mockAPI{
		summaryStatus: http.StatusInternalServerError,
		summaryBody:   "upstream exploded",
		identityBody:  goodIdentity,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if core.KindOf(err) != core.ErrNetwork {
		t.Errorf("500 should classify as network error, got %v", err)
	}
}

func TestFetch_GarbageBodyClassifiedAsParse(t *testing.T) {
	api := &mockAPI{
		summaryBody:  "<html>definitely not json</html>",
		identityBody: goodIdentity,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if core.KindOf(err) != core.ErrParse {
		t.Errorf("malformed body should classify as parse error, got %v", err)
	}
}

func TestFetch_EmptyBodyClassifiedAsParse(t *testing.T) {
	api := &mockAPI{
		summaryBody:  "",
		identityBody: goodIdentity,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if core.KindOf(err) != core.ErrParse {
		t.Errorf("empty body should classify as parse error, got %v", err)
	}
}

func TestFetch_NotLoggedInBodyClassifiedAsReauth(t *testing.T) {
	api := &mockAPI{
		summaryBody:  `{"error": "Not logged in"}`,
		identityBody: goodIdentity,
	}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if core.KindOf(err) != core.ErrNeedsReauth {
		t.Errorf("200 with not-logged-in body should classify as needs-reauth, got %v", err)
	}
}

func TestFetch_ConnectionRefusedClassifiedAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // refuse all connections

	_, err := NewClient(srv.URL).Fetch(context.Background(), "sessionKey=abc")
	if core.KindOf(err) != core.ErrNetwork {
		t.Errorf("connection failure should classify as network error, got %v", err)
	}
}

func TestParseUtilization(t *testing.T) {
	cases := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{`75`, 75, true},
		{`0.75`, 75, true},
		{`"75%"`, 75, true},
		{`"0.75"`, 75, true},
		{`" 42 % "`, 42, true},
		{`1`, 100, true},
		{`100`, 100, true},
		{`null`, 0, false},
		{`"n/a"`, 0, false},
		{``, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseUtilization(json.RawMessage(tc.raw))
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("parseUtilization(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestBucketPercent_PrefersServerUtilization(t *testing.T) {
	pct, ok := bucketPercent(&usageBucket{
		UsedCents:   50,
		LimitCents:  100,
		Utilization: json.RawMessage(`80`),
	})
	if !ok || pct != 80 {
		t.Errorf("bucketPercent = (%v, %v), want server value 80", pct, ok)
	}

	pct, ok = bucketPercent(&usageBucket{UsedCents: 50, LimitCents: 200})
	if !ok || pct != 25 {
		t.Errorf("derived bucketPercent = (%v, %v), want 25", pct, ok)
	}

	if _, ok := bucketPercent(nil); ok {
		t.Error("nil bucket should report no percentage")
	}
}
