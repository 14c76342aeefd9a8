// Package strapi stores onboarding records in a Strapi v4 content API.
//
// Each record kind is a collection type with a userId attribute. Existence is
// a filtered list query; a record exists when the response has at least one
// entry in data.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heartlink/onboardgate"
)

const maxResponseBytes = 1 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the Strapi origin, e.g. https://cms.example.com.
	BaseURL string
	// APIToken is sent as a bearer token when set.
	APIToken string
	// Collections maps a record kind to its collection API ID. Missing kinds
	// use "phones" and "profiles".
	Collections map[onboardgate.RecordKind]string
	// HTTPClient defaults to a client with a 10s timeout. Per-lookup
	// deadlines come from the caller's context.
	HTTPClient *http.Client
}

// Client implements onboardgate.RecordStore against Strapi.
type Client struct {
	base        *url.URL
	token       string
	collections map[onboardgate.RecordKind]string
	httpClient  *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("strapi: base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("strapi: invalid base url %q", cfg.BaseURL)
	}

	collections := map[onboardgate.RecordKind]string{
		onboardgate.RecordPhone:   "phones",
		onboardgate.RecordProfile: "profiles",
	}
	maps.Copy(collections, cfg.Collections)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:        base,
		token:       strings.TrimSpace(cfg.APIToken),
		collections: collections,
		httpClient:  httpClient,
	}, nil
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
}

// RecordExists implements onboardgate.RecordStore.
func (c *Client) RecordExists(ctx context.Context, kind onboardgate.RecordKind, userID string) (bool, error) {
	collection, err := c.collection(kind)
	if err != nil {
		return false, err
	}

	q := url.Values{}
	q.Set("filters[userId][$eq]", userID)
	q.Set("pagination[pageSize]", "1")
	q.Set("fields[0]", "userId")

	body, err := c.do(ctx, http.MethodGet, collection, q, nil)
	if err != nil {
		return false, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false, fmt.Errorf("%w: %v", onboardgate.ErrMalformedResponse, err)
	}
	data, ok := raw["data"]
	if !ok {
		return false, fmt.Errorf("%w: missing data", onboardgate.ErrMalformedResponse)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return false, fmt.Errorf("%w: data is not a list", onboardgate.ErrMalformedResponse)
	}
	return len(entries) > 0, nil
}

// CreateRecord implements onboardgate.RecordStore.
func (c *Client) CreateRecord(ctx context.Context, kind onboardgate.RecordKind, userID string, payload map[string]any) error {
	collection, err := c.collection(kind)
	if err != nil {
		return err
	}

	doc := maps.Clone(payload)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["userId"] = userID

	buf, err := json.Marshal(map[string]any{"data": doc})
	if err != nil {
		return fmt.Errorf("strapi: encode %s: %w", kind, err)
	}
	_, err = c.do(ctx, http.MethodPost, collection, nil, buf)
	return err
}

func (c *Client) collection(kind onboardgate.RecordKind) (string, error) {
	name, ok := c.collections[kind]
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
	}
	return name, nil
}

func (c *Client) do(ctx context.Context, method, collection string, q url.Values, payload []byte) ([]byte, error) {
	u := c.base.JoinPath("api", collection)
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("strapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", onboardgate.ErrBackendUnavailable, method, collection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", onboardgate.ErrBackendUnavailable, collection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", onboardgate.ErrBackendUnavailable, method, collection, resp.StatusCode)
	}
	return body, nil
}
