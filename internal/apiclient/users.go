package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// GetUsers lists platform users.
func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	var out List[User]
	if err := c.do(ctx, http.MethodGet, c.URL(Users, "users"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching users: %w", err)
	}
	return out, nil
}

// HealthCheck calls GET {base}/{service}/health. Unknown services are
// checked against the contacts base URL.
func (c *Client) HealthCheck(ctx context.Context, svc Service) (*Health, error) {
	c.mu.RLock()
	_, known := c.baseURLs[svc]
	c.mu.RUnlock()

	base := svc
	if !known {
		base = Contacts
	}
	var out Health
	if err := c.do(ctx, http.MethodGet, c.URL(base, string(svc), "health"), nil, &out); err != nil {
		return nil, fmt.Errorf("checking %s health: %w", svc, err)
	}
	return &out, nil
}
