package auth_client

import (
	"github.com/mcdev12/boardwalk/go/clients"
)

// AuthClient talks to the token-issuing service and the profile endpoint.
type AuthClient struct {
	*clients.BaseClient
}

func NewAuthClient(baseURL string) *AuthClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &AuthClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(ContentTypeHeader, ContentTypeJSON)

	return client
}
