package marketo

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider hands out the bearer credential for API calls.
type TokenProvider interface {
	// Token returns the cached access token, acquiring one on first use.
	Token(ctx context.Context) (string, error)
	// Refresh discards the cached token and acquires a new one.
	Refresh(ctx context.Context) (string, error)
}

// ClientCredentials acquires access tokens from the identity endpoint
// with the OAuth2 client-credentials grant.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewClientCredentials creates a token provider for instanceURL's identity service.
func NewClientCredentials(instanceURL, clientID, clientSecret string, httpClient *http.Client) *ClientCredentials {
	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     instanceURL + "/identity/oauth/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	if token != "" {
		return token, nil
	}
	return c.Refresh(ctx)
}

func (c *ClientCredentials) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	tok, err := c.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("identity endpoint returned an empty access token")
	}

	c.accessToken = tok.AccessToken
	return c.accessToken, nil
}
