package auth

import (
	"fmt"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/credstore"
)

// saveLogin persists the credential pair from a login response. Both
// halves must be present; a partial pair is never stored.
func saveLogin(store credstore.Store, resp *api.LoginResponse) error {
	access, refresh := resp.Tokens()
	if access == "" || refresh == "" {
		return ErrMissingTokens
	}
	if err := credstore.SaveTokens(store, access, refresh); err != nil {
		credstore.Clear(store)
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}
