package connection

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is subtracted from the token's literal expiry when
// judging staleness, tolerating clock skew and in-flight request latency.
const DefaultSafetyMargin = time.Minute

// DefaultParticipantName is used when hand-off state carries no name.
const DefaultParticipantName = "user"

// Manager owns the cached credential for one session and refreshes it lazily.
// Concurrent callers of CurrentOrRefreshed share a single in-flight issuer
// request instead of issuing duplicates.
type Manager struct {
	issuer Issuer
	margin time.Duration
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	details *Details
}

type Option func(*Manager)

func WithSafetyMargin(margin time.Duration) Option {
	return func(m *Manager) {
		if margin > 0 {
			m.margin = margin
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBootstrap hydrates the cache from persisted hand-off state before the
// manager is first used.
func WithBootstrap(values map[string]string) Option {
	return func(m *Manager) {
		m.Bootstrap(values)
	}
}

func NewManager(issuer Issuer, opts ...Option) *Manager {
	m := &Manager{
		issuer: issuer,
		margin: DefaultSafetyMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bootstrap loads connection details from persisted hand-off state (keys
// "server", "room", "token", "name", e.g. parsed from a deep link). Incomplete
// state is ignored; the manager then falls back to the issuer.
func (m *Manager) Bootstrap(values map[string]string) {
	if m == nil || values == nil {
		return
	}
	details := Details{
		ServerURL:        values["server"],
		RoomName:         values["room"],
		ParticipantName:  values["name"],
		ParticipantToken: values["token"],
	}
	if details.ParticipantName == "" {
		details.ParticipantName = DefaultParticipantName
	}
	if !details.Complete() {
		return
	}
	m.mu.Lock()
	m.details = &details
	m.mu.Unlock()
	log.Debug().Str("component", "connection").Str("room", details.RoomName).
		Msg("hydrated connection details from hand-off state")
}

// Current returns the cached details without checking staleness or refreshing.
func (m *Manager) Current() (Details, bool) {
	if m == nil {
		return Details{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details == nil {
		return Details{}, false
	}
	return *m.details, true
}

// stale decodes the token's expiry claim without verifying the signature (the
// issuer signs, this client only reads). A token with no parseable expiry is
// treated as already stale so a refresh is forced rather than trusting it
// forever.
func (m *Manager) stale(d Details) bool {
	if d.ParticipantToken == "" {
		return true
	}
	token, _, err := jwt.NewParser().ParseUnverified(d.ParticipantToken, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !m.now().Before(exp.Time.Add(-m.margin))
}

// Refresh fetches fresh details from the issuer and replaces the cache
// wholesale. Concurrent refreshes collapse into one issuer call; every waiter
// observes the same outcome. Errors surface to the caller, who may retry by
// calling again; no automatic backoff.
func (m *Manager) Refresh(ctx context.Context) (Details, error) {
	if m.issuer == nil {
		return Details{}, ErrMissingCredential
	}
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		details, err := m.issuer.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.details = &details
		m.mu.Unlock()
		log.Debug().Str("component", "connection").Str("room", details.RoomName).
			Str("participant", details.ParticipantName).Msg("refreshed connection details")
		return details, nil
	})
	if err != nil {
		return Details{}, err
	}
	return v.(Details), nil
}

// CurrentOrRefreshed returns a valid credential, refreshing when the cached
// one is absent or stale.
func (m *Manager) CurrentOrRefreshed(ctx context.Context) (Details, error) {
	m.mu.Lock()
	cached := m.details
	m.mu.Unlock()

	if cached != nil && !m.stale(*cached) {
		return *cached, nil
	}
	return m.Refresh(ctx)
}
