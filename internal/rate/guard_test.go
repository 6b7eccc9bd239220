package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardBucketExhaustion(t *testing.T) {
	guard := NewGuard(Provider("test").MaxRequestsPer(Minute, 2))
	now := time.Now()

	for i := 0; i < 2; i++ {
		if d := guard.ShouldCall(now); !d.Allowed {
			t.Fatalf("call %d: expected allowed, got %s", i, d.Reason)
		}
	}
	d := guard.ShouldCall(now)
	if d.Allowed {
		t.Fatalf("expected third call to be blocked")
	}
	if d.Reason != "budget" {
		t.Fatalf("expected budget reason, got %s", d.Reason)
	}

	if d := guard.ShouldCall(now.Add(31 * time.Second)); !d.Allowed {
		t.Fatalf("expected refill after half a window, got %s", d.Reason)
	}
}

func TestGuardCooldownOnTooManyRequests(t *testing.T) {
	guard := NewGuard(Provider("test").ReadHeaders(SmartThingsHeaders()))
	now := time.Now()
	guard.now = func() time.Time { return now }

	headers := http.Header{}
	headers.Set("Retry-After", "5")
	guard.RecordResponse(http.StatusTooManyRequests, headers)

	d := guard.ShouldCall(now.Add(time.Second))
	if d.Allowed || d.Reason != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", d)
	}
	if !d.RetryAt.Equal(now.Add(5 * time.Second)) {
		t.Fatalf("unexpected retry at %s", d.RetryAt)
	}
	if d := guard.ShouldCall(now.Add(6 * time.Second)); !d.Allowed {
		t.Fatalf("expected call after cooldown, got %s", d.Reason)
	}
}

func TestGuardResetHeaderInMilliseconds(t *testing.T) {
	guard := NewGuard(Provider("test").BudgetFloor(1).ReadHeaders(SmartThingsHeaders()))
	now := time.Now()
	guard.now = func() time.Time { return now }

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "250")
	headers.Set("X-RateLimit-Remaining", "1")
	headers.Set("X-RateLimit-Reset", "1500")
	guard.RecordResponse(http.StatusOK, headers)

	d := guard.ShouldCall(now)
	if d.Allowed {
		t.Fatalf("expected floor to block")
	}
	if !d.RetryAt.Equal(now.Add(1500 * time.Millisecond)) {
		t.Fatalf("unexpected retry at %s", d.RetryAt)
	}
}

func TestGuardAllowsCallsAfterBudgetReset(t *testing.T) {
	guard := NewGuard(Provider("test").BudgetFloor(5).ReadHeaders(SmartThingsHeaders()))
	now := time.Now()
	guard.now = func() time.Time { return now }

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "5")
	headers.Set("X-RateLimit-Reset", "1500")
	guard.RecordResponse(http.StatusOK, headers)

	if d := guard.ShouldCall(now.Add(time.Second)); d.Allowed {
		t.Fatalf("expected block before reset")
	}
	if d := guard.ShouldCall(now.Add(2 * time.Second)); !d.Allowed {
		t.Fatalf("expected call after reset, got %s", d.Reason)
	}
	if d := guard.ShouldCall(now.Add(time.Hour)); !d.Allowed {
		t.Fatalf("expected calls to keep flowing, got %s", d.Reason)
	}

	// A fresh response re-arms the floor.
	now = now.Add(time.Hour)
	headers.Set("X-RateLimit-Remaining", "200")
	guard.RecordResponse(http.StatusOK, headers)
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("expected healthy budget to allow, got %s", d.Reason)
	}
}

func TestWrapHTTPServesCachedGetWhileBlocked(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := WrapHTTP(Provider("test").MaxRequestsPer(Minute, 1).CacheFor(time.Minute), server.Client())

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL + "/devices")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != `{"ok":true}` {
			t.Fatalf("get %d: unexpected body %q", i, body)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one upstream hit, got %d", hits.Load())
	}

	_, err := client.Post(server.URL+"/devices/1/commands", "application/json", nil)
	var rlErr RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError for blocked POST, got %v", err)
	}
	if rlErr.Provider != "test" {
		t.Fatalf("unexpected provider %q", rlErr.Provider)
	}
}
