// Package auth implements the login, registration and logout flows on
// top of the api client and the credential store.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/logging"
)

var (
	// ErrMissingTokens means the login response lacked the access or
	// refresh token.
	ErrMissingTokens = errors.New("login response is missing tokens")
	// ErrNotLoggedIn is returned by calls that need stored credentials.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Session drives the account flows of one client.
type Session struct {
	client *api.Client
	store  credstore.Store
	log    zerolog.Logger
}

// NewSession returns a Session. store is normally client.Store().
func NewSession(client *api.Client, store credstore.Store, logger *zerolog.Logger) *Session {
	return &Session{
		client: client,
		store:  store,
		log:    logging.OrNop(logger).With().Str("component", "auth").Logger(),
	}
}

// LoggedIn reports whether a credential pair is stored.
func (s *Session) LoggedIn() bool {
	return credstore.LoggedIn(s.store)
}

// Login authenticates, stores the credential pair and returns the
// current user.
func (s *Session) Login(ctx context.Context, email, password string) (*api.Me, error) {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := saveLogin(s.store, resp); err != nil {
		return nil, err
	}
	s.log.Info().Str("email", email).Msg("logged in")

	me, err := s.client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return me, nil
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, req api.RegisterRequest) (*api.Me, error) {
	me, err := s.client.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("email", req.Email).Msg("registered")
	return me, nil
}

// Me returns the current user.
func (s *Session) Me(ctx context.Context) (*api.Me, error) {
	if !s.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	return s.client.Me(ctx)
}

// Logout revokes the refresh token on the server and clears local
// credentials. The server call is best effort; local credentials are
// cleared even when it fails.
func (s *Session) Logout(ctx context.Context) error {
	_, refresh := credstore.Tokens(s.store)
	if refresh != "" {
		if err := s.client.Logout(ctx, refresh); err != nil {
			s.log.Warn().Err(err).Msg("server logout failed")
		}
	}
	return s.clear()
}

// LogoutAll revokes every session of the user, then clears local
// credentials.
func (s *Session) LogoutAll(ctx context.Context) error {
	if s.LoggedIn() {
		if err := s.client.LogoutAll(ctx); err != nil {
			s.log.Warn().Err(err).Msg("server logout-all failed")
		}
	}
	return s.clear()
}

func (s *Session) clear() error {
	if err := credstore.Clear(s.store); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	s.log.Info().Msg("logged out")
	return nil
}
