package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/rigcast/pkg/common/httpclient"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
)

// Client talks to the run endpoints of a training service.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpclient.New(timeout),
		attempts: 3,
	}
}

func (c *Client) Submit(ctx context.Context, req models.RunRequest) (models.TrainingRun, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.TrainingRun{}, err
	}
	var run models.TrainingRun
	err = c.do(ctx, http.MethodPost, "/api/v1/runs", payload, &run)
	return run, err
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	var run models.TrainingRun
	err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+id.String(), nil, &run)
	return run, err
}

// Wait polls a run until it completes or fails.
func (c *Client) Wait(ctx context.Context, id uuid.UUID, interval time.Duration) (models.TrainingRun, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.Get(ctx, id)
		if err != nil {
			return run, err
		}
		if run.Status == StatusCompleted || run.Status == StatusFailed {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	return httpclient.Retry(ctx, c.attempts, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &httpclient.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
		return nil
	})
}
