package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func tokenExpiringIn(t *testing.T, now time.Time, d time.Duration) string {
	t.Helper()
	return signedToken(t, jwt.MapClaims{"exp": now.Add(d).Unix()})
}

type stubIssuer struct {
	mu      sync.Mutex
	calls   atomic.Int64
	details Details
	err     error
	block   chan struct{}
}

func (s *stubIssuer) Fetch(_ context.Context) (Details, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Details{}, s.err
	}
	return s.details, nil
}

func TestStale_ExpiryWithinMargin(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(nil, WithClock(func() time.Time { return now }))

	require.True(t, m.stale(Details{ParticipantToken: tokenExpiringIn(t, now, 30*time.Second)}))
	require.False(t, m.stale(Details{ParticipantToken: tokenExpiringIn(t, now, 120*time.Second)}))
}

func TestStale_NoExpiryClaim(t *testing.T) {
	m := NewManager(nil)
	require.True(t, m.stale(Details{ParticipantToken: signedToken(t, jwt.MapClaims{"sub": "user"})}))
}

func TestStale_MalformedToken(t *testing.T) {
	m := NewManager(nil)
	require.True(t, m.stale(Details{ParticipantToken: "not-a-jwt"}))
	require.True(t, m.stale(Details{}))
}

func TestCurrentOrRefreshed_ServesFreshCache(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	issuer := &stubIssuer{}
	m := NewManager(issuer, WithClock(func() time.Time { return now }))
	m.Bootstrap(map[string]string{
		"server": "wss://example.test",
		"room":   "test-room",
		"token":  tokenExpiringIn(t, now, time.Hour),
	})

	details, err := m.CurrentOrRefreshed(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-room", details.RoomName)
	require.Equal(t, int64(0), issuer.calls.Load())
}

func TestCurrentOrRefreshed_RefreshesStaleCache(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	issuer := &stubIssuer{details: Details{
		ServerURL:        "wss://issuer.test",
		RoomName:         "fresh-room",
		ParticipantName:  "user",
		ParticipantToken: tokenExpiringIn(t, now, time.Hour),
	}}
	m := NewManager(issuer, WithClock(func() time.Time { return now }))
	m.Bootstrap(map[string]string{
		"server": "wss://example.test",
		"room":   "old-room",
		"token":  tokenExpiringIn(t, now, 30*time.Second),
	})

	details, err := m.CurrentOrRefreshed(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-room", details.RoomName)
	require.Equal(t, int64(1), issuer.calls.Load())

	cached, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, "fresh-room", cached.RoomName)
}

func TestCurrentOrRefreshed_SingleFlight(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	issuer := &stubIssuer{
		details: Details{
			ServerURL:        "wss://issuer.test",
			RoomName:         "room",
			ParticipantToken: tokenExpiringIn(t, now, time.Hour),
		},
		block: make(chan struct{}),
	}
	m := NewManager(issuer, WithClock(func() time.Time { return now }))

	var wg sync.WaitGroup
	type outcome struct {
		details Details
		err     error
	}
	results := make(chan outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			details, err := m.CurrentOrRefreshed(context.Background())
			results <- outcome{details: details, err: err}
		}()
	}

	// give the callers time to pile onto the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(issuer.block)
	wg.Wait()
	close(results)

	for res := range results {
		require.NoError(t, res.err)
		require.Equal(t, "room", res.details.RoomName)
	}
	require.Equal(t, int64(1), issuer.calls.Load())
}

func TestCurrentOrRefreshed_NoIssuerNoCache(t *testing.T) {
	m := NewManager(nil)
	_, err := m.CurrentOrRefreshed(context.Background())
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestBootstrap_IncompleteStateIgnored(t *testing.T) {
	m := NewManager(nil)
	m.Bootstrap(map[string]string{"room": "test-room"})

	_, ok := m.Current()
	require.False(t, ok)
}

func TestBootstrap_DefaultsParticipantName(t *testing.T) {
	m := NewManager(nil)
	m.Bootstrap(map[string]string{
		"server": "wss://example.test",
		"room":   "test-room",
		"token":  "tok",
	})

	details, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, DefaultParticipantName, details.ParticipantName)
}

func TestHTTPIssuer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"serverUrl":"wss://example.test","roomName":"test-room","participantName":"user","participantToken":"tok"}`))
	}))
	defer srv.Close()

	issuer := NewHTTPIssuer(srv.URL)
	details, err := issuer.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, Details{
		ServerURL:        "wss://example.test",
		RoomName:         "test-room",
		ParticipantName:  "user",
		ParticipantToken: "tok",
	}, details)
}

func TestHTTPIssuer_FailureSurfacesBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("ROOM_API_KEY is not defined"))
	}))
	defer srv.Close()

	issuer := NewHTTPIssuer(srv.URL)
	_, err := issuer.Fetch(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusInternalServerError, fetchErr.Status)
	require.Equal(t, "ROOM_API_KEY is not defined", fetchErr.Body)
}
