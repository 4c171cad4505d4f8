package profile

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Lookup resolves whether a rider profile exists for an identity. The
// production implementation queries the user service; tests stub it.
type Lookup interface {
	RiderExists(ctx context.Context, riderID int64) (bool, error)
}

// Client queries the user service's profile endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 2 * time.Second}}
}

// RiderExists does GET {base}/profiles/{id}. 200 means the profile
// exists, 404 means it does not; anything else is an upstream failure
// surfaced to the caller, never retried here.
func (c *Client) RiderExists(ctx context.Context, riderID int64) (bool, error) {
	url := fmt.Sprintf("%s/profiles/%d", c.BaseURL, riderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("profile lookup: unexpected status %d", resp.StatusCode)
	}
}
