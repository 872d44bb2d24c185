package auth_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingToken is returned when a success response carries no access token.
var ErrMissingToken = errors.New("response carries no access token")

type TokenRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the body of /auth/token, /auth/refresh and /auth/signup.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
}

type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Anonymous reports whether the server did not recognise the bearer token.
func (p Profile) Anonymous() bool {
	return p.Username == "" || p.Username == AnonymousUsername
}

// Login exchanges a username (or email) and password for a token pair.
func (c *AuthClient) Login(ctx context.Context, usernameOrEmail, password string) (*TokenResponse, error) {
	req := TokenRequest{Username: usernameOrEmail, Password: password}
	return c.postForTokens(ctx, TokenEndpoint, req)
}

// Refresh exchanges a refresh token for a new rotated token pair.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.postForTokens(ctx, RefreshEndpoint, RefreshRequest{RefreshToken: refreshToken})
}

// Signup creates an account and returns the auto-login token pair.
func (c *AuthClient) Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error) {
	return c.postForTokens(ctx, SignupEndpoint, req)
}

// Me returns the profile for the given access token.
func (c *AuthClient) Me(ctx context.Context, accessToken string) (*Profile, error) {
	header := http.Header{}
	if accessToken != "" {
		header.Set(AuthorizationHeader, BearerPrefix+accessToken)
	}

	body, err := c.Get(ctx, MeEndpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &profile, nil
}

func (c *AuthClient) postForTokens(ctx context.Context, endpoint string, payload interface{}) (*TokenResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.Post(ctx, endpoint, bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to post %s: %w", endpoint, err)
	}

	var response TokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.Token == "" {
		return nil, ErrMissingToken
	}
	return &response, nil
}
