// Package sanity stores onboarding records as Sanity documents.
//
// Existence uses the HTTP query API with a GROQ count over the document type
// of the record kind. Creation sends a single create mutation.
package sanity

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

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/heartlink/onboardgate"
)

const (
	// DefaultAPIVersion is the dated API version used when none is configured.
	DefaultAPIVersion = "2023-05-03"

	countQuery       = `count(*[_type == $type && userId == $userId])`
	maxResponseBytes = 1 << 20
	idAlphabet       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength         = 20
	keyLength        = 12
)

// Config configures a Client.
type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	// BaseURL overrides https://{ProjectID}.api.sanity.io.
	BaseURL string
	// Types maps a record kind to its document type. Missing kinds use
	// "user" for phone and "profile" for profile.
	Types      map[onboardgate.RecordKind]string
	HTTPClient *http.Client
}

// Client implements onboardgate.RecordStore against the Sanity HTTP API.
type Client struct {
	api        *url.URL
	dataset    string
	token      string
	types      map[onboardgate.RecordKind]string
	httpClient *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	dataset := strings.TrimSpace(cfg.Dataset)
	if dataset == "" {
		dataset = "production"
	}
	version := strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v")
	if version == "" {
		version = DefaultAPIVersion
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		project := strings.TrimSpace(cfg.ProjectID)
		if project == "" {
			return nil, errors.New("sanity: project id required")
		}
		base = "https://" + project + ".api.sanity.io"
	}
	api, err := url.Parse(base)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return nil, fmt.Errorf("sanity: invalid base url %q", base)
	}
	api = api.JoinPath("v" + version)

	types := map[onboardgate.RecordKind]string{
		onboardgate.RecordPhone:   "user",
		onboardgate.RecordProfile: "profile",
	}
	maps.Copy(types, cfg.Types)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		api:        api,
		dataset:    dataset,
		token:      strings.TrimSpace(cfg.Token),
		types:      types,
		httpClient: httpClient,
	}, nil
}

// jsonParam encodes a GROQ query parameter. Parameters are JSON values.
func jsonParam(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

type queryResponse struct {
	Result *json.Number `json:"result"`
}

// RecordExists implements onboardgate.RecordStore.
func (c *Client) RecordExists(ctx context.Context, kind onboardgate.RecordKind, userID string) (bool, error) {
	docType, err := c.docType(kind)
	if err != nil {
		return false, err
	}

	q := url.Values{}
	q.Set("query", countQuery)
	q.Set("$type", jsonParam(docType))
	q.Set("$userId", jsonParam(userID))

	body, err := c.do(ctx, http.MethodGet, "query", q, nil)
	if err != nil {
		return false, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out queryResponse
	if err := dec.Decode(&out); err != nil {
		return false, fmt.Errorf("%w: %v", onboardgate.ErrMalformedResponse, err)
	}
	if out.Result == nil {
		return false, fmt.Errorf("%w: missing result", onboardgate.ErrMalformedResponse)
	}
	n, err := out.Result.Int64()
	if err != nil {
		return false, fmt.Errorf("%w: result is not a count", onboardgate.ErrMalformedResponse)
	}
	return n > 0, nil
}

// CreateRecord implements onboardgate.RecordStore.
func (c *Client) CreateRecord(ctx context.Context, kind onboardgate.RecordKind, userID string, payload map[string]any) error {
	docType, err := c.docType(kind)
	if err != nil {
		return err
	}

	doc, err := newDocument(docType, userID, payload)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(map[string]any{
		"mutations": []any{map[string]any{"create": doc}},
	})
	if err != nil {
		return fmt.Errorf("sanity: encode %s: %w", kind, err)
	}

	q := url.Values{}
	q.Set("returnIds", "true")
	_, err = c.do(ctx, http.MethodPost, "mutate", q, buf)
	return err
}

// newDocument copies payload into a document with a generated _id. Objects
// inside arrays get a _key, which Sanity requires for array items.
func newDocument(docType, userID string, payload map[string]any) (map[string]any, error) {
	id, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return nil, fmt.Errorf("sanity: document id: %w", err)
	}

	doc := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		keyed, err := withKeys(v)
		if err != nil {
			return nil, err
		}
		doc[k] = keyed
	}
	doc["_id"] = id
	doc["_type"] = docType
	doc["userId"] = userID
	return doc, nil
}

func withKeys(v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return v, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		obj = maps.Clone(obj)
		if key, _ := obj["_key"].(string); key == "" {
			key, err := nanoid.Generate(idAlphabet, keyLength)
			if err != nil {
				return nil, fmt.Errorf("sanity: array key: %w", err)
			}
			obj["_key"] = key
		}
		out[i] = obj
	}
	return out, nil
}

func (c *Client) docType(kind onboardgate.RecordKind) (string, error) {
	t, ok := c.types[kind]
	if !ok || t == "" {
		return "", fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
	}
	return t, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, q url.Values, payload []byte) ([]byte, error) {
	u := c.api.JoinPath("data", endpoint, c.dataset)
	u.RawQuery = q.Encode()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("sanity: build request: %w", err)
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
		return nil, fmt.Errorf("%w: sanity %s: %w", onboardgate.ErrBackendUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: sanity %s: %w", onboardgate.ErrBackendUnavailable, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: sanity %s returned %d", onboardgate.ErrBackendUnavailable, endpoint, resp.StatusCode)
	}
	return body, nil
}
