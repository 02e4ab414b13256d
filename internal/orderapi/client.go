package orderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

// Client reads authoritative order records from the upstream order API.
// The tracking service never writes through it; writes go through the
// lifecycle machine's own store.
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

func (c *Client) FetchOrder(ctx context.Context, id string) (*models.Assignment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/orders/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order api returned %d", resp.StatusCode)
	}
	var a models.Assignment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}
