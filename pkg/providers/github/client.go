package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.github.com"

// Client is the official GitHub SDK client.
type Client = gh.Client

// NewTokenClient creates a GitHub SDK client authenticated with a static
// access token. A non-default base URL selects an enterprise endpoint.
func NewTokenClient(ctx context.Context, token, baseURL string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github access token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	base := strings.TrimRight(baseURL, "/")
	if base != "" && base != defaultBaseURL {
		client, err := gh.NewEnterpriseClient(base, base, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return gh.NewClient(httpClient), nil
}
