// Package kobo is a client for the KoboToolbox v2 REST API.
//
// Only the read endpoints needed to mirror a form are implemented: asset
// listing, asset detail (the schema document) and paginated submission data.
package kobo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 1000
	maxErrorBody    = 512
)

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	log      *zap.Logger
	PageSize int
}

// New creates a client for baseURL (for example https://kf.kobotoolbox.org/api/v2).
func New(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
		log:      log.Named("kobo"),
		PageSize: DefaultPageSize,
	}
}

// Asset is a deployed form as described by the assets endpoint. Raw holds
// the complete asset document, which carries the survey and choices sheets.
type Asset struct {
	UID              string          `json:"uid"`
	Name             string          `json:"name"`
	AssetType        string          `json:"asset_type"`
	VersionID        string          `json:"version_id"`
	DeploymentActive bool            `json:"deployment__active"`
	SubmissionCount  int             `json:"deployment__submission_count"`
	Raw              json.RawMessage `json:"-"`
}

type page struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// ------------------------------------------------------------------
// Low-level request handling
// ------------------------------------------------------------------

func (c *Client) request(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("kobo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read body: %w", err)}
	}
	c.log.Debug("request", zap.String("path", path), zap.Int("status", resp.StatusCode))
	return body, checked(resp.StatusCode, body)
}

func checked(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Err: &Error{Status: status, Msg: snippet(body)}}
	}
	return &Error{Status: status, Msg: snippet(body)}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) ([]byte, error) {
	body, err := c.request(ctx, path, query)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("kobo: decode %s: %w", path, err)
	}
	return body, nil
}

// ------------------------------------------------------------------
// Endpoints
// ------------------------------------------------------------------

// Ping checks that the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, "/assets/", url.Values{"limit": {"1"}, "format": {"json"}})
	return err
}

// ListAssets returns every survey asset visible to the token.
func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	for start := 0; ; start += c.pageSize() {
		q := url.Values{
			"asset_type": {"survey"},
			"format":     {"json"},
			"limit":      {strconv.Itoa(c.pageSize())},
			"start":      {strconv.Itoa(start)},
		}
		var p page
		if _, err := c.getJSON(ctx, "/assets/", q, &p); err != nil {
			return nil, err
		}
		for _, raw := range p.Results {
			a, err := decodeAsset(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, *a)
		}
		if p.Next == nil || len(p.Results) == 0 {
			return out, nil
		}
	}
}

// FetchSchema returns the asset document for uid. Its Raw field can be fed
// straight to the schema index builder.
func (c *Client) FetchSchema(ctx context.Context, uid string) (*Asset, error) {
	body, err := c.request(ctx, "/assets/"+url.PathEscape(uid)+"/", url.Values{"format": {"json"}})
	if err != nil {
		return nil, fmt.Errorf("fetch asset %s: %w", uid, err)
	}
	return decodeAsset(body)
}

func decodeAsset(raw []byte) (*Asset, error) {
	var a Asset
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("kobo: decode asset: %w", err)
	}
	a.Raw = append(json.RawMessage(nil), raw...)
	return &a, nil
}

// FetchSubmissions returns every submission of uid, following pagination.
// When since is set only records with _submission_time after it are
// requested. Records are returned undecoded so that one malformed record
// does not fail the page it arrived on.
func (c *Client) FetchSubmissions(ctx context.Context, uid, since string) ([]json.RawMessage, error) {
	path := "/assets/" + url.PathEscape(uid) + "/data/"
	var out []json.RawMessage
	for start := 0; ; start += c.pageSize() {
		q := url.Values{
			"format": {"json"},
			"limit":  {strconv.Itoa(c.pageSize())},
			"start":  {strconv.Itoa(start)},
		}
		if since != "" {
			filter, _ := json.Marshal(map[string]any{"_submission_time": map[string]string{"$gt": since}})
			q.Set("query", string(filter))
		}
		var p page
		if _, err := c.getJSON(ctx, path, q, &p); err != nil {
			return nil, fmt.Errorf("fetch submissions %s: %w", uid, err)
		}
		out = append(out, p.Results...)
		if len(p.Results) < c.pageSize() || (p.Count > 0 && start+len(p.Results) >= p.Count) {
			c.log.Debug("fetched submissions", zap.String("form", uid), zap.Int("count", len(out)))
			return out, nil
		}
	}
}

func (c *Client) pageSize() int {
	if c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}
