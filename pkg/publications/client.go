// Package publications is a client for the court-diary publication search
// provider: fetching publications for an OAB registration and the
// "ensure registered" calls that precede it.
package publications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.publicacoes.example.com"

// Client talks to the publication search provider.
type Client interface {
	FetchPublications(ctx context.Context, q Query) ([]Item, error)
	RegisterSearchTerm(ctx context.Context, q Query) error
	RegisterOffice(ctx context.Context) error
}

// Query identifies the attorney whose publications are searched.
type Query struct {
	OABNumber string `json:"oab"`
	UF        string `json:"uf"`
	Name      string `json:"name,omitempty"`
}

// Item is one publication as returned by the provider.
type Item struct {
	ID            string          `json:"id"`
	ProcessNumber string          `json:"process_number"`
	PublishedAt   string          `json:"published_at"`
	Content       string          `json:"content"`
	Court         string          `json:"court"`
	Diary         string          `json:"diary"`
	Page          string          `json:"page"`
	OAB           string          `json:"oab"`
	Raw           json.RawMessage `json:"-"`
}

// PublishedTime parses PublishedAt, accepting RFC 3339 or a plain date.
func (it Item) PublishedTime() *time.Time {
	s := strings.TrimSpace(it.PublishedAt)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

type listResponse struct {
	Items []json.RawMessage `json:"items"`
}

// StatusError is returned for any non-2xx provider response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("publications: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsAuth reports whether the provider rejected the credentials.
func (e *StatusError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the provider base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles requests to rps per second. 0 disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	token    string
	officeID string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a client authenticating with a bearer token on behalf of
// officeID.
func NewClient(token, officeID string, opts ...Option) Client {
	c := &httpClient{
		token:    token,
		officeID: officeID,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FetchPublications(ctx context.Context, q Query) ([]Item, error) {
	params := url.Values{}
	params.Set("oab", q.OABNumber)
	params.Set("uf", strings.ToUpper(q.UF))

	body, err := c.do(ctx, "fetch publications", http.MethodGet, "/v1/publications?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, eris.Wrap(err, "publications: unmarshal response")
	}

	items := make([]Item, 0, len(list.Items))
	for i, raw := range list.Items {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, eris.Wrapf(err, "publications: unmarshal item %d", i)
		}
		it.Raw = raw
		items = append(items, it)
	}
	return items, nil
}

func (c *httpClient) RegisterSearchTerm(ctx context.Context, q Query) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "publications: marshal search term")
	}
	_, err = c.do(ctx, "register search term", http.MethodPut, "/v1/search-terms", payload)
	return ignoreConflict(err)
}

func (c *httpClient) RegisterOffice(ctx context.Context) error {
	_, err := c.do(ctx, "register office", http.MethodPut, "/v1/offices/"+url.PathEscape(c.officeID), nil)
	return ignoreConflict(err)
}

// ignoreConflict treats 409 as "already registered".
func ignoreConflict(err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

func (c *httpClient) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "publications: rate limit")
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, eris.Wrapf(err, "publications: create %s request", op)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Office-ID", c.officeID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "publications: send %s", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "publications: read %s response", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
