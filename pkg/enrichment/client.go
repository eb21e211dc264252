// Package enrichment is a client for the per-process detail provider, which
// returns parties, dates and case class for a court process number.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.processos.example.com"

// Client fetches process details.
type Client interface {
	// FetchProcess returns nil, nil when the provider has no record.
	FetchProcess(ctx context.Context, number string) (*Process, error)
}

// Process is the provider's process record.
type Process struct {
	Number     string  `json:"process_number"`
	Court      string  `json:"court"`
	Class      string  `json:"class"`
	Subject    string  `json:"subject"`
	Status     string  `json:"status"`
	FiledAt    string  `json:"filed_at"`
	ClaimValue *Amount `json:"claim_value"`
	Parties    Parties `json:"parties"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a process record. A claim value that is empty or
// cannot be read as an amount is left nil so it never overwrites a known one.
func (p *Process) UnmarshalJSON(b []byte) error {
	type process Process
	aux := struct {
		*process
		ClaimValue json.RawMessage `json:"claim_value"`
	}{process: (*process)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.ClaimValue = optionalAmount(aux.ClaimValue)
	return nil
}

func optionalAmount(raw json.RawMessage) *Amount {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == `""` {
		return nil
	}
	var a Amount
	if err := a.UnmarshalJSON(raw); err != nil {
		return nil
	}
	return &a
}

// Parties lists party names by side. The provider does not say whether a
// party is a natural or legal person.
type Parties struct {
	Plaintiffs []string   `json:"plaintiffs"`
	Defendants []string   `json:"defendants"`
	Attorneys  []Attorney `json:"attorneys"`
}

// Attorney is a lawyer on record.
type Attorney struct {
	Name string `json:"name"`
	OAB  string `json:"oab"`
}

// FiledTime parses FiledAt, accepting RFC 3339, ISO dates and dd/mm/yyyy.
func (p *Process) FiledTime() *time.Time {
	s := strings.TrimSpace(p.FiledAt)
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

// Amount is a monetary value the provider sends either as a JSON number or
// as a string, possibly in Brazilian format ("R$ 1.234,56").
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	if !strings.HasPrefix(s, `"`) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return eris.Wrapf(err, "enrichment: parse amount %s", s)
		}
		*a = Amount(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return eris.Wrap(err, "enrichment: decode amount")
	}
	f, err := ParseAmount(str)
	if err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// thousandsOnly matches dot-grouped integers such as "1.500" or "2.000.000".
var thousandsOnly = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// ParseAmount parses "1234.56", "1.234,56", "1.500" and "R$ 1.234,56".
// A dot followed by three digits with no decimal comma is a thousands
// separator.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case thousandsOnly.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "enrichment: parse amount %q", s)
	}
	return f, nil
}

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("enrichment: unexpected status %d: %s", e.StatusCode, e.Body)
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
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an enrichment client authenticating with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FetchProcess(ctx context.Context, number string) (*Process, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "enrichment: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/processes/"+url.PathEscape(number), nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "enrichment: send request for %s", number)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var p Process
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrapf(err, "enrichment: unmarshal process %s", number)
	}
	p.Raw = json.RawMessage(body)
	return &p, nil
}
