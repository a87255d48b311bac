/**
 * @description
 * This package provides a client for the GLEIF LEI lookup API. It resolves the
 * legal name of the entity behind a Legal Entity Identifier.
 *
 * @notes
 * - A failed lookup is an expected outcome: LegalName reports it through its
 *   boolean result and a log entry, never through an error.
 */
package gleifclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// DefaultBaseURL is the public GLEIF lookup endpoint.
const DefaultBaseURL = "https://leilookup.gleif.org"

// legalNamePath selects the legal name of the first record in a leirecords response:
// [{"Entity": {"LegalName": {"$": "..."}}}]
const legalNamePath = `$[0].Entity.LegalName["$"]`

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client is a client for the GLEIF API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new GLEIF API client. A zero timeout leaves requests
// bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "gleifclient"),
	}
}

// LegalName looks up the legal name registered for lei. ok is false when the
// lookup failed for any reason.
func (c *Client) LegalName(ctx context.Context, lei string) (name string, ok bool) {
	c.logger.Info("getting legal name from GLEIF", "lei", lei)

	name, err := c.fetchLegalName(ctx, lei)
	if err != nil {
		c.logger.Warn("could not fetch legal name from GLEIF", "lei", lei, "error", err)
		return "", false
	}
	return name, true
}

func (c *Client) fetchLegalName(ctx context.Context, lei string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v2/leirecords?lei=%s", c.baseURL, url.QueryEscape(lei))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gleif API returned status %d", resp.StatusCode)
	}

	return extractLegalName(body)
}

// extractLegalName pulls the first record's legal name out of a leirecords payload.
func extractLegalName(body []byte) (string, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	records, isList := payload.([]any)
	if !isList {
		return "", fmt.Errorf("unexpected response shape: %T", payload)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no record found")
	}

	value, err := jsonpath.Get(legalNamePath, payload)
	if err != nil {
		return "", fmt.Errorf("legal name not found: %w", err)
	}
	// jsonpath may wrap a single answer in a list.
	if list, ok := value.([]any); ok && len(list) > 0 {
		value = list[0]
	}

	name, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("legal name is not a string: %v", value)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("legal name is empty")
	}
	return name, nil
}
