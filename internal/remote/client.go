// Package remote issues the authenticated usage and identity requests and
// normalizes the responses into a UsageSnapshot. All failures are classified
// into the engine's error taxonomy; raw transport errors never escape.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quotabar/quotabar/internal/core"
)

const (
	// DefaultBaseURL points at the remote service's web API.
	DefaultBaseURL = "https://claude.ai/api"

	requestTimeout = 15 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type usageSummaryResp struct {
	BillingCycle struct {
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
	} `json:"billing_cycle"`
	MembershipTier string       `json:"membership_tier"`
	Plan           *usageBucket `json:"plan"`
	OnDemand       *usageBucket `json:"on_demand"`
	SpendCents     int64        `json:"spend_cents"`
}

type usageBucket struct {
	UsedCents  int64 `json:"used_cents"`
	LimitCents int64 `json:"limit_cents"`
	// Utilization is polymorphic in the wild: 75, 0.75, "75%" have all
	// been observed. Parsed defensively.
	Utilization json.RawMessage `json:"utilization,omitempty"`
}

type identityResp struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	SubjectID string `json:"subject_id"`
}

type accountUsageResp struct {
	Utilization json.RawMessage `json:"utilization"`
	ResetsAt    string          `json:"resets_at"`
}

// Fetch issues the usage-summary and identity requests in parallel, then an
// optional legacy per-account request gated on the identity subject id. The
// legacy request's failure is swallowed; the summary's is fatal.
func (c *Client) Fetch(ctx context.Context, credential string) (core.UsageSnapshot, error) {
	var (
		wg          sync.WaitGroup
		summary     usageSummaryResp
		identity    identityResp
		summaryErr  error
		identityErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		summaryErr = c.getJSON(ctx, "/v1/usage/summary", credential, &summary)
	}()
	go func() {
		defer wg.Done()
		identityErr = c.getJSON(ctx, "/v1/me", credential, &identity)
	}()
	wg.Wait()

	if summaryErr != nil {
		return core.UsageSnapshot{}, summaryErr
	}
	if identityErr != nil {
		// Identity is best-effort unless it proves the session is dead.
		if core.KindOf(identityErr) == core.ErrNeedsReauth {
			return core.UsageSnapshot{}, identityErr
		}
		log.Printf("[remote] identity request failed: %v", identityErr)
	}

	snap := c.normalize(summary, identity)

	if identity.SubjectID != "" {
		var legacy accountUsageResp
		path := "/v1/accounts/" + identity.SubjectID + "/usage"
		if err := c.getJSON(ctx, path, credential, &legacy); err != nil {
			log.Printf("[remote] legacy account usage failed: %v", err)
		} else if pct, ok := parseUtilization(legacy.Utilization); ok {
			snap.TertiaryPercent = &pct
			if snap.ResetAt == nil {
				if t, err := time.Parse(time.RFC3339, legacy.ResetsAt); err == nil {
					snap.ResetAt = &t
				}
			}
		}
	}

	return snap, nil
}

func (c *Client) normalize(summary usageSummaryResp, identity identityResp) core.UsageSnapshot {
	snap := core.UsageSnapshot{
		PlanLabel:    summary.MembershipTier,
		AccountEmail: identity.Email,
		FetchedAt:    time.Now(),
	}

	if pct, ok := bucketPercent(summary.Plan); ok {
		snap.PrimaryPercent = pct
	}
	if pct, ok := bucketPercent(summary.OnDemand); ok {
		snap.SecondaryPercent = &pct
	}

	if summary.SpendCents > 0 {
		// Integer minor-currency units on the wire.
		cost := float64(summary.SpendCents) / 100.0
		snap.CostUSD = &cost
	}

	if t, err := time.Parse(time.RFC3339, summary.BillingCycle.EndsAt); err == nil {
		snap.ResetAt = &t
	}

	return snap
}

// bucketPercent prefers the server-reported percentage, falling back to
// used/limit when absent.
func bucketPercent(b *usageBucket) (float64, bool) {
	if b == nil {
		return 0, false
	}
	if pct, ok := parseUtilization(b.Utilization); ok {
		return pct, true
	}
	if b.LimitCents > 0 {
		return float64(b.UsedCents) / float64(b.LimitCents) * 100, true
	}
	return 0, false
}

// parseUtilization handles number (75 or 0.75) and string ("75%" / "0.75")
// encodings, normalizing fraction-scale values to 0-100.
func parseUtilization(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return normalizePercent(f), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return normalizePercent(v), true
		}
	}

	return 0, false
}

// normalizePercent converts fraction-scale values (≤ 1) to 0-100.
func normalizePercent(v float64) float64 {
	if v <= 1.0 && v >= 0 {
		return v * 100
	}
	return v
}

// getJSON performs an authenticated GET and classifies every failure into
// the error taxonomy.
func (c *Client) getJSON(ctx context.Context, path, credential string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &core.KindError{Kind: core.ErrNetwork, Message: fmt.Sprintf("creating request: %v", err)}
	}

	req.Header.Set("Cookie", credential)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts land here too; they are network failures, not hangs.
		return &core.KindError{Kind: core.ErrNetwork, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &core.KindError{Kind: core.ErrNeedsReauth, Message: fmt.Sprintf("session rejected (HTTP %d)", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &core.KindError{Kind: core.ErrNetwork, Message: fmt.Sprintf("reading response: %v", err)}
	}

	if notLoggedIn(body) {
		return &core.KindError{Kind: core.ErrNeedsReauth, Message: "service reports session is not logged in"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.KindError{Kind: core.ErrNetwork, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return &core.KindError{Kind: core.ErrParse, Message: "empty response body"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &core.KindError{Kind: core.ErrParse, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return nil
}

// notLoggedIn detects the explicit "not logged in" body some endpoints
// return with a 200.
func notLoggedIn(body []byte) bool {
	trimmed := bytes.ToLower(body)
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return bytes.Contains(trimmed, []byte("not logged in")) ||
		bytes.Contains(trimmed, []byte(`"error":"unauthorized"`))
}
