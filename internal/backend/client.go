// Package backend talks to the dispatch REST backend.
//
// Every call returns the decoded JSON payload untouched; shaping it is the
// reconciliation layer's job. Transport faults and non-2xx statuses come back
// as errors. A 2xx body may still carry the {isSuccess:false} failure shape,
// which callers detect with records.Failure.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// TokenSource supplies the opaque auth token. An empty token sends no
// Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("backend http status %d: %s", e.Status, msg)
}

// Message is the text shown to the operator.
func (e *StatusError) Message() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return http.StatusText(e.Status)
}

// Client is an HTTP client for the backend API.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
	tokens     TokenSource
	orgID      string
}

// Option customizes a Client.
type Option func(*Client)

// WithOrgID scopes list calls to one organization.
func WithOrgID(orgID string) Option {
	return func(c *Client) { c.orgID = orgID }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, endpoints Endpoints, timeout time.Duration, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var schemePrefix = regexp.MustCompile(`(?i)^(bearer|token)\s+`)

// AuthorizationHeader prefixes a bare token with "Bearer ". Tokens that
// already carry a Bearer or Token scheme pass through unchanged.
func AuthorizationHeader(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if schemePrefix.MatchString(token) {
		return token
	}
	return "Bearer " + token
}

func (c *Client) url(endpoint string, suffix string, query url.Values) string {
	u := c.baseURL + endpoint + suffix
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}

func (c *Client) do(ctx context.Context, method, target string, body any, auth bool) (any, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("read auth token: %w", err)
		}
		if h := AuthorizationHeader(token); h != "" {
			req.Header.Set("Authorization", h)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return map[string]any{"result": string(raw)}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return payload, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (c *Client) orgQuery() url.Values {
	if c.orgID == "" {
		return nil
	}
	return url.Values{"orgId": {c.orgID}}
}

func pathID(id string) string { return url.PathEscape(id) }
