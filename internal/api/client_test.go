package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/testutil/backend"
)

func newClient(t *testing.T, baseURL string, store credstore.Store) *api.Client {
	t.Helper()
	c, err := api.NewClient(api.ClientConfig{BaseURL: baseURL, Store: store, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

// loggedIn returns a client holding a valid credential pair for srv.
func loggedIn(t *testing.T, srv *backend.Server) (*api.Client, *credstore.Memory) {
	t.Helper()
	store := credstore.NewMemory()
	access, refresh := srv.Issue()
	require.NoError(t, credstore.SaveTokens(store, access, refresh))
	return newClient(t, srv.URL, store), store
}

func TestNewClientValidation(t *testing.T) {
	_, err := api.NewClient(api.ClientConfig{Store: credstore.NewMemory()})
	assert.Error(t, err)

	_, err = api.NewClient(api.ClientConfig{BaseURL: "http://localhost"})
	assert.Error(t, err)

	c, err := api.NewClient(api.ClientConfig{BaseURL: "http://localhost:8000/", Store: credstore.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL())
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"id": 7, "email": "a@b.c"}`))
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyAccess, "tok"))
	c := newClient(t, srv.URL, store)

	var me api.Me
	require.NoError(t, c.Post(context.Background(), "/auth/me/", map[string]string{"x": "y"}, &me))
	assert.Equal(t, int64(7), me.ID)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Len(t, got.Get("X-Request-ID"), 26)
}

func TestNoBearerWithoutToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, credstore.NewMemory())
	require.NoError(t, c.Get(context.Background(), "/api/me/favorites/", nil))
	assert.Equal(t, "", auth.Load())
}

func TestConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	srv := backend.New(t)
	c, store := loggedIn(t, srv)
	oldAccess, _ := store.Get(credstore.KeyAccess)

	srv.ExpireAccess()
	srv.Set(func(s *backend.Server) { s.RefreshDelay = 150 * time.Millisecond })

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListBooks(context.Background(), api.ListBooksParams{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), srv.RefreshCalls())
	assert.Equal(t, int64(1), c.Refreshes())

	newAccess, _ := store.Get(credstore.KeyAccess)
	assert.NotEmpty(t, newAccess)
	assert.NotEqual(t, oldAccess, newAccess)
}

func TestRefreshFailureClearsSession(t *testing.T) {
	srv := backend.New(t)
	c, store := loggedIn(t, srv)

	srv.ExpireAccess()
	srv.Set(func(s *backend.Server) {
		s.RejectRefresh = true
		s.RefreshDelay = 100 * time.Millisecond
	})

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListLoans(context.Background(), api.PageParams{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		var apiErr *api.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "/api/loans/", apiErr.Path)
		assert.ErrorIs(t, err, api.ErrSessionExpired)
	}
	assert.Equal(t, int64(1), srv.RefreshCalls())
	assert.False(t, credstore.LoggedIn(store))

	access, refresh := credstore.Tokens(store)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestReplayedRequestIsNotRetriedAgain(t *testing.T) {
	var refreshes, hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.RefreshPath:
			refreshes.Add(1)
			w.Write([]byte(`{"access": "fresh"}`))
		default:
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail": "nope"}`))
		}
	}))
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, credstore.SaveTokens(store, "stale", "r"))
	c := newClient(t, srv.URL, store)

	err := c.Get(context.Background(), "/api/books/", nil)
	assert.True(t, api.IsUnauthorized(err))
	assert.NotErrorIs(t, err, api.ErrSessionExpired)
	assert.Equal(t, int64(1), refreshes.Load())
	assert.Equal(t, int64(2), hits.Load())
}

func TestAuthEndpointsNeverRefresh(t *testing.T) {
	srv := backend.New(t)
	c, _ := loggedIn(t, srv)

	_, err := c.Login(context.Background(), backend.Email, "wrong")
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.Equal(t, int64(0), srv.RefreshCalls())
}

func TestMissingRefreshTokenSkipsNetwork(t *testing.T) {
	srv := backend.New(t)
	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyAccess, "expired"))
	c := newClient(t, srv.URL, store)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, api.ErrSessionExpired)
	assert.Equal(t, int64(0), srv.RefreshCalls())
	assert.Contains(t, err.Error(), "log in again")
}

func TestRotatedRefreshTokenIsStored(t *testing.T) {
	srv := backend.New(t)
	c, store := loggedIn(t, srv)
	_, oldRefresh := credstore.Tokens(store)

	srv.ExpireAccess()
	srv.Set(func(s *backend.Server) { s.RotateRefresh = true })

	_, err := c.Me(context.Background())
	require.NoError(t, err)

	_, newRefresh := credstore.Tokens(store)
	assert.NotEmpty(t, newRefresh)
	assert.NotEqual(t, oldRefresh, newRefresh)
}

func TestStaleTokenReplaysWithoutRefresh(t *testing.T) {
	srv := backend.New(t)
	store := credstore.NewMemory()
	access, refresh := srv.Issue()
	require.NoError(t, credstore.SaveTokens(store, "dead", refresh))

	// The request goes out with a dead token; by the time its 401 is
	// handled the store already holds a valid one.
	var first atomic.Bool
	hooked := &hookStore{Store: store, onGet: func() {
		if first.CompareAndSwap(false, true) {
			return
		}
		store.Set(credstore.KeyAccess, access)
	}}
	c := newClient(t, srv.URL, hooked)

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), srv.RefreshCalls())
}

// hookStore runs onGet before every access-token read.
type hookStore struct {
	credstore.Store
	onGet func()
}

func (h *hookStore) Get(key string) (string, error) {
	if key == credstore.KeyAccess {
		h.onGet()
	}
	return h.Store.Get(key)
}

func TestAbandonedCallerDoesNotReplay(t *testing.T) {
	srv := backend.New(t)
	c, store := loggedIn(t, srv)

	srv.ExpireAccess()
	srv.Set(func(s *backend.Server) { s.RefreshDelay = 300 * time.Millisecond })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Me(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), srv.Hits(api.MePath))

	// The shared refresh still completes for everyone else.
	require.Eventually(t, func() bool {
		access, _ := store.Get(credstore.KeyAccess)
		return access != "" && srv.RefreshCalls() == 1 && c.Refreshes() == 1
	}, 2*time.Second, 20*time.Millisecond)
	_, err = c.Me(context.Background())
	assert.NoError(t, err)
}

func TestAPIErrorFormatting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"email": ["user with this email already exists."], "password": ["too short"]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, credstore.NewMemory())
	_, err := c.Register(context.Background(), api.RegisterRequest{Email: "x@y.z", Password: "p"})

	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))
	assert.Equal(t, "API error (400): email: user with this email already exists., password: too short", err.Error())
	assert.Contains(t, apiErr.Fields, "email")
}
