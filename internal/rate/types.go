package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Hour
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Hour:
		return time.Hour
	default:
		return time.Minute
	}
}

// Headers names the response headers a provider uses to report its budget.
type Headers struct {
	Limit      string
	Remaining  string
	Reset      string
	ResetUnit  time.Duration
	RetryAfter string
}

// SmartThingsHeaders is the SmartThings mapping; X-RateLimit-Reset is in milliseconds.
func SmartThingsHeaders() Headers {
	return Headers{
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		Reset:      "X-RateLimit-Reset",
		ResetUnit:  time.Millisecond,
		RetryAfter: "Retry-After",
	}
}

// Declaration defines a provider's rate limits and header mapping.
type Declaration struct {
	provider string
	limits   map[Window]int
	floor    int
	cacheTTL time.Duration
	headers  Headers
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

// BudgetFloor keeps this many requests of the header-reported budget in reserve.
func (d Declaration) BudgetFloor(floor int) Declaration {
	d.floor = floor
	return d
}

// CacheFor keeps successful GET responses to serve while the guard blocks calls.
func (d Declaration) CacheFor(ttl time.Duration) Declaration {
	d.cacheTTL = ttl
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) Floor() int {
	return d.floor
}

func (d Declaration) CacheTTL() time.Duration {
	return d.cacheTTL
}

func (d Declaration) Headers() Headers {
	return d.headers
}

// RateLimited is the compile-time contract for plugins that declare limits.
type RateLimited interface {
	RateLimits() Declaration
}
