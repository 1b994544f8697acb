package api

import (
	"context"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

// Login exchanges email and password for a credential pair. It does not
// store the tokens; see auth.Session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Post(ctx, LoginPath, credentials{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Me, error) {
	var me Me
	if err := c.Post(ctx, RegisterPath, req, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Me returns the current user.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.Get(ctx, MePath, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Logout blacklists the given refresh token on the server.
func (c *Client) Logout(ctx context.Context, refresh string) error {
	return c.Post(ctx, LogoutPath, refreshBody{Refresh: refresh}, nil)
}

// LogoutAll revokes every refresh token of the current user.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.Post(ctx, LogoutAllPath, struct{}{}, nil)
}
