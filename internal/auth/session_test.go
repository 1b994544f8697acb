package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/auth"
	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/testutil/backend"
)

func newSession(t *testing.T, srv *backend.Server) (*auth.Session, *credstore.Memory) {
	t.Helper()
	store := credstore.NewMemory()
	client, err := api.NewClient(api.ClientConfig{BaseURL: srv.URL, Store: store})
	require.NoError(t, err)
	return auth.NewSession(client, store, nil), store
}

func TestLogin(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		srv := backend.New(t)
		srv.Set(func(s *backend.Server) { s.LegacyLoginFields = legacy })
		sess, store := newSession(t, srv)

		me, err := sess.Login(context.Background(), backend.Email, backend.Password)
		require.NoError(t, err, "legacy=%v", legacy)
		assert.Equal(t, backend.Email, me.Email)
		assert.True(t, sess.LoggedIn())

		access, refresh := credstore.Tokens(store)
		assert.NotEmpty(t, access)
		assert.NotEmpty(t, refresh)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv := backend.New(t)
	sess, _ := newSession(t, srv)

	_, err := sess.Login(context.Background(), backend.Email, "nope")
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, sess.LoggedIn())
	assert.Equal(t, int64(0), srv.RefreshCalls())
}

func TestLoginMissingRefreshToken(t *testing.T) {
	srv := backend.New(t)
	srv.Set(func(s *backend.Server) { s.LoginOmitsRefresh = true })
	sess, store := newSession(t, srv)

	_, err := sess.Login(context.Background(), backend.Email, backend.Password)
	assert.ErrorIs(t, err, auth.ErrMissingTokens)
	access, _ := credstore.Tokens(store)
	assert.Empty(t, access)
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	srv := backend.New(t)
	sess, store := newSession(t, srv)
	_, err := sess.Login(context.Background(), backend.Email, backend.Password)
	require.NoError(t, err)

	srv.Set(func(s *backend.Server) { s.FailLogout = true })
	require.NoError(t, sess.Logout(context.Background()))

	assert.False(t, sess.LoggedIn())
	access, refresh := credstore.Tokens(store)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
	assert.Equal(t, int64(1), srv.Hits(api.LogoutPath))
}

func TestLogoutAll(t *testing.T) {
	srv := backend.New(t)
	sess, _ := newSession(t, srv)
	_, err := sess.Login(context.Background(), backend.Email, backend.Password)
	require.NoError(t, err)

	require.NoError(t, sess.LogoutAll(context.Background()))
	assert.False(t, sess.LoggedIn())
	assert.Equal(t, int64(1), srv.Hits(api.LogoutAllPath))
}

func TestMeRequiresLogin(t *testing.T) {
	srv := backend.New(t)
	sess, _ := newSession(t, srv)

	_, err := sess.Me(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotLoggedIn)
}

func TestRegister(t *testing.T) {
	srv := backend.New(t)
	sess, _ := newSession(t, srv)

	me, err := sess.Register(context.Background(), api.RegisterRequest{Email: "new@example.com", Password: "pw", DisplayName: "New"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", me.Email)
	assert.False(t, sess.LoggedIn())

	_, err = sess.Register(context.Background(), api.RegisterRequest{Email: backend.Email, Password: "pw"})
	assert.Equal(t, 400, api.StatusCode(err))
}
