// Package googleauth loads Google API credentials from a JSON file and hands
// them to renderers as an explicit provider object. There is no process-wide
// token cache: each renderer receives the provider it should use.
package googleauth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Provider wraps a token source derived from a credentials file
// (service-account or authorized-user JSON).
type Provider struct {
	ts oauth2.TokenSource
}

// FromFile builds a provider from a Google credentials JSON file. The scopes
// are the API scopes the renderers will need.
func FromFile(ctx context.Context, path string, scopes ...string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &Provider{ts: creds.TokenSource}, nil
}

// ClientOptions returns the options to pass when constructing an API service.
func (p *Provider) ClientOptions() []option.ClientOption {
	return []option.ClientOption{option.WithTokenSource(p.ts)}
}
