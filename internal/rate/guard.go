package rate

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// Guard enforces rate limits for a provider.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[Window]*bucket
	remaining int
	hasBudget bool
	cooldown  time.Time
	cache     map[string]cacheEntry
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: NewGuard(decl)}
	return &client
}

func NewGuard(decl Declaration) *Guard {
	g := &Guard{
		decl:    decl,
		now:     time.Now,
		buckets: make(map[Window]*bucket),
		cache:   make(map[string]cacheEntry),
	}
	start := g.now()
	for window, limit := range decl.Limits() {
		g.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: start}
	}
	return g
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(rt.guard.now())
	if !decision.Allowed {
		blockedTotal.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		if cached := rt.guard.cachedResponse(req); cached != nil {
			return cached, nil
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return rt.guard.maybeCacheResponse(req, resp)
}

// ShouldCall decides whether a request may go out now and consumes budget if so.
func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() {
		if now.Before(g.cooldown) {
			return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
		}
		// The provider window has reset; the next response reports the fresh budget.
		g.cooldown = time.Time{}
		g.hasBudget = false
	}

	if g.hasBudget && g.remaining <= g.decl.Floor() {
		return Decision{Allowed: false, Reason: "budget", RetryAt: g.cooldown}
	}

	for window, b := range g.buckets {
		if b.capacity <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !consumeToken(b, window.Duration(), now) {
			retryAt := b.last.Add(window.Duration() / time.Duration(b.capacity))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	if g.hasBudget {
		g.remaining--
	}
	return Decision{Allowed: true}
}

// RecordResponse updates budget and cooldown from the provider's headers.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	now := g.now()

	if remaining := headerInt(headers, cfg.Remaining); remaining >= 0 {
		g.remaining = remaining
		g.hasBudget = true
		remainingGauge.WithLabelValues(provider).Set(float64(remaining))
	}
	if limit := headerInt(headers, cfg.Limit); limit >= 0 {
		limitGauge.WithLabelValues(provider).Set(float64(limit))
	}

	var resetAt time.Time
	if reset := headerInt(headers, cfg.Reset); reset >= 0 {
		unit := cfg.ResetUnit
		if unit <= 0 {
			unit = time.Second
		}
		resetAt = now.Add(time.Duration(reset) * unit)
	}

	switch {
	case status == http.StatusTooManyRequests:
		if retry := headerInt(headers, cfg.RetryAfter); retry > 0 {
			g.cooldown = now.Add(time.Duration(retry) * time.Second)
		} else if !resetAt.IsZero() {
			g.cooldown = resetAt
		} else {
			g.cooldown = now.Add(time.Minute)
		}
	case g.hasBudget && g.remaining <= g.decl.Floor() && !resetAt.IsZero():
		g.cooldown = resetAt
	default:
		g.cooldown = time.Time{}
		if g.hasBudget && g.remaining <= g.decl.Floor() {
			g.hasBudget = false
		}
	}

	if !g.cooldown.IsZero() {
		retryAfterGauge.WithLabelValues(provider).Set(g.cooldown.Sub(now).Seconds())
	} else {
		retryAfterGauge.WithLabelValues(provider).Set(0)
	}
}

func (g *Guard) cachedResponse(req *http.Request) *http.Response {
	if g.decl.CacheTTL() <= 0 || req.Method != http.MethodGet {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[cacheKey(req)]
	if !ok || g.now().After(entry.expires) {
		return nil
	}
	return cloneResponse(req, entry.status, entry.header, entry.body)
}

func (g *Guard) maybeCacheResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if g.decl.CacheTTL() <= 0 || req.Method != http.MethodGet || resp.StatusCode >= 300 {
		return resp, nil
	}
	buf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[cacheKey(req)] = cacheEntry{
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		body:    buf,
		expires: g.now().Add(g.decl.CacheTTL()),
	}
	g.mu.Unlock()

	return cloneResponse(req, resp.StatusCode, resp.Header, buf), nil
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func consumeToken(b *bucket, window time.Duration, now time.Time) bool {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	refillRate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// cacheKey includes the bearer token so accounts never see each other's responses.
func cacheKey(req *http.Request) string {
	return req.Header.Get("Authorization") + " " + req.URL.String()
}

func cloneResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
}
