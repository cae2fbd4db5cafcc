package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"casetimer/internal/domain"
	"casetimer/internal/ports"
)

// Client implements ports.TimeTrackingStore against the case management REST API.
type Client struct {
	baseURL string
	tokens  ports.TokenSource
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, tokens ports.TokenSource, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// FetchTimeTracking loads the time tracking record of a case.
// GET /api/cases/{caseID}/time-tracking
// A 404 means the backend has not created the record yet and yields an empty record.
func (c *Client) FetchTimeTracking(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error) {
	if caseID == "" {
		return domain.TimeTrackingRecord{}, errors.New("missing case id")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.trackingPath(caseID), nil)
	if err != nil {
		return domain.TimeTrackingRecord{}, err
	}

	var out TimeTracking
	found, err := c.do(req, &out)
	if err != nil {
		return domain.TimeTrackingRecord{}, err
	}
	if !found {
		c.log.Debug("no time tracking yet", slog.String("case", caseID))
		return domain.TimeTrackingRecord{CaseID: caseID}, nil
	}
	return out.ToDomain(), nil
}

// UpdateStageTime writes one stage's timing.
// PUT /api/cases/{caseID}/time-tracking/stages/{stage}
func (c *Client) UpdateStageTime(ctx context.Context, u domain.StageUpdate) error {
	if u.CaseID == "" {
		return errors.New("missing case id")
	}
	if !u.Stage.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownStage, u.Stage)
	}
	body, err := json.Marshal(NewStageUpdateRequest(u))
	if err != nil {
		return err
	}
	path := c.trackingPath(u.CaseID) + "/stages/" + url.PathEscape(u.Stage.String())
	req, err := c.newRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	found, err := c.do(req, nil)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("api: %w", ports.ErrNotFound)
	}
	return nil
}

func (c *Client) trackingPath(caseID string) string {
	return "/api/cases/" + url.PathEscape(caseID) + "/time-tracking"
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath(path)

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("api: token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and decodes the envelope's data into out (when non-nil).
// It reports found=false for a 404 instead of an error.
func (c *Client) do(req *http.Request, out any) (bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("api: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("api: decode response: %w", err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request failed"
		}
		return false, fmt.Errorf("api: %s", msg)
	}
	if out != nil && env.Data != nil {
		if err := json.Unmarshal(*env.Data, out); err != nil {
			return false, fmt.Errorf("api: decode data: %w", err)
		}
	}
	return true, nil
}
