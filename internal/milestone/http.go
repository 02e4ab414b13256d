package milestone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEvaluator posts milestone events to the rewards service. The
// caller guards "first time only"; this client just delivers.
type HTTPEvaluator struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPEvaluator(endpoint, key string) *HTTPEvaluator {
	return &HTTPEvaluator{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (e *HTTPEvaluator) CheckAndProcess(ctx context.Context, actorID, role, key string) error {
	body := map[string]string{"actor_id": actorID, "role": role, "milestone_key": key}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Key != "" {
		req.Header.Set("Authorization", "Bearer "+e.Key)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("milestone endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Noop is used when no rewards endpoint is configured.
type Noop struct{}

func (Noop) CheckAndProcess(ctx context.Context, actorID, role, key string) error { return nil }
