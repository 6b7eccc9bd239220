package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/joshp123/acbridge/internal/config"
)

const (
	DefaultRefreshInterval = 10 * time.Minute
	expiryMargin           = 30 * time.Second
)

var (
	ErrScopeMismatch    = errors.New("oauth scope mismatch")
	ErrTokenUnavailable = errors.New("oauth token unavailable")
)

// RefreshInterval returns the background refresh period; zero disables the ticker.
func RefreshInterval(cfg *config.OAuthConfig) time.Duration {
	if cfg == nil {
		return DefaultRefreshInterval
	}
	if cfg.RefreshEnabled != nil && !*cfg.RefreshEnabled {
		return 0
	}
	if cfg.RefreshInterval > 0 {
		return cfg.RefreshInterval.Duration()
	}
	return DefaultRefreshInterval
}

// Manager manages OAuth refresh tokens and access token caching.
type Manager struct {
	decl       Declaration
	blobStore  BlobStore
	httpClient *http.Client

	mu              sync.Mutex
	refreshMu       sync.Mutex
	accessToken     string
	expiresAt       time.Time
	state           State
	refreshInFlight bool
	config          *oauth2.Config
}

func NewManager(decl Declaration, bootstrapPath string, blobStore BlobStore) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(decl, bootstrap, blobStore)
}

// NewManagerFromBootstrap creates an OAuth manager from an inline Bootstrap.
// A nil blobStore keeps state on local disk only.
func NewManagerFromBootstrap(decl Declaration, bootstrap Bootstrap, blobStore BlobStore) (*Manager, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	if blobStore == nil {
		blobStore = NoopStore{}
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	m := &Manager{
		decl:       decl,
		blobStore:  blobStore,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		config:     OAuth2Config(decl, bootstrap.ClientID, bootstrap.ClientSecret, ""),
	}

	state, err := m.loadInitialState(bootstrap)
	if err != nil {
		return nil, err
	}
	m.state = state
	if state.InstalledAppID != "" {
		log.Info().Str("provider", decl.Provider).Str("installed_app_id", state.InstalledAppID).Msg("oauth state loaded")
	}
	return m, nil
}

// OAuth2Config builds the x/oauth2 config for a declaration.
func OAuth2Config(decl Declaration, clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   decl.AuthorizeURL,
			TokenURL:  decl.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: redirectURL,
		Scopes:      append([]string(nil), decl.Scopes...),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := max(interval, expiryMargin)
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

// AccessToken returns a cached token, refreshing synchronously when it is missing or about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}
	if err := m.refresh(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}
	return "", ErrTokenUnavailable
}

// TriggerRefresh drops the cached token and refreshes in the background.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	m.mu.Lock()
	if m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.accessToken = ""
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.refreshInFlight = false
			m.mu.Unlock()
		}()
		m.refreshMu.Lock()
		defer m.refreshMu.Unlock()
		if err := m.refresh(ctx); err != nil {
			log.Warn().Err(err).Str("provider", m.decl.Provider).Msg("oauth refresh failed")
		}
	}()
}

func (m *Manager) cachedToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken != "" && time.Until(m.expiresAt) > expiryMargin {
		return m.accessToken, true
	}
	return "", false
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.accessToken == "" || time.Until(m.expiresAt) <= threshold
	if !need || m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshInFlight = false
		m.mu.Unlock()
	}()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	if err := m.refresh(ctx); err != nil {
		log.Warn().Err(err).Str("provider", m.decl.Provider).Msg("oauth refresh failed")
	}
}

// refresh trades the refresh token for a new access token. SmartThings
// invalidates the old refresh token immediately, so the rotated one is
// persisted before the access token is considered usable.
func (m *Manager) refresh(ctx context.Context) error {
	token, err := m.exchange(ctx)
	if err != nil {
		observeRefresh(m.decl.Provider, time.Time{}, err)
		return err
	}

	m.mu.Lock()
	m.state.Absorb(token)
	state := m.state
	m.mu.Unlock()

	if err := WriteState(m.decl.StatePath, state); err != nil {
		observeRefresh(m.decl.Provider, time.Time{}, err)
		return fmt.Errorf("persist state: %w", err)
	}
	m.mirror(ctx, state)

	m.mu.Lock()
	m.accessToken = token.AccessToken
	m.expiresAt = token.Expiry
	m.mu.Unlock()

	observeRefresh(m.decl.Provider, token.Expiry, nil)
	log.Debug().Str("provider", m.decl.Provider).Time("expires_at", token.Expiry).Msg("oauth token refreshed")
	return nil
}

func (m *Manager) exchange(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	refreshToken := m.state.RefreshToken
	m.mu.Unlock()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		body := strings.TrimSpace(string(retrieveErr.Body))
		return nil, fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
	}
	return token, err
}

func (m *Manager) loadInitialState(bootstrap Bootstrap) (State, error) {
	ctx := context.Background()

	local, localErr := LoadState(m.decl.StatePath)
	if localErr == nil {
		if err := checkStateFile(m.decl.StatePath); err != nil {
			return State{}, err
		}
		if err := m.checkScope(&local); err != nil {
			return State{}, err
		}
		local.ClientID = bootstrap.ClientID
		local.ClientSecret = bootstrap.ClientSecret
		m.mirror(ctx, local)
		return local, nil
	}

	blob, blobErr := m.loadFromBlob(ctx)
	if blobErr == nil {
		blob.ClientID = bootstrap.ClientID
		blob.ClientSecret = bootstrap.ClientSecret
		if err := m.checkScope(&blob); err != nil {
			return State{}, err
		}
		if err := WriteState(m.decl.StatePath, blob); err != nil {
			return State{}, err
		}
		m.mirror(ctx, blob)
		return blob, nil
	}

	if !errors.Is(blobErr, ErrBlobNotFound) {
		if !errors.Is(localErr, ErrStateNotFound) {
			return State{}, localErr
		}
		return State{}, blobErr
	}

	if bootstrap.RefreshToken == "" {
		return State{}, fmt.Errorf("bootstrap missing refresh_token; run `acbridge oauth auth-code`")
	}

	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  bootstrap.RefreshToken,
		Scope:         bootstrap.Scope,
	}
	if err := m.checkScope(&state); err != nil {
		return State{}, err
	}
	if err := WriteState(m.decl.StatePath, state); err != nil {
		return State{}, err
	}
	m.mirror(ctx, state)

	return state, nil
}

func (m *Manager) checkScope(state *State) error {
	if state.Scope == "" {
		state.Scope = m.decl.Scope()
	}
	if !m.decl.Covers(state.Scope) {
		scopeRejected.WithLabelValues(m.decl.Provider).Inc()
		return fmt.Errorf("%w: have %q, need %q", ErrScopeMismatch, state.Scope, m.decl.Scope())
	}
	return nil
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx, m.decl.Provider)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

// mirror copies state to the blob store; failures only flip the health gauge.
func (m *Manager) mirror(ctx context.Context, state State) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err == nil {
		err = m.blobStore.Save(ctx, m.decl.Provider, data)
	}
	observeMirror(m.decl.Provider, err)
	if err != nil {
		log.Warn().Err(err).Str("provider", m.decl.Provider).Msg("oauth state mirror failed")
	}
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
