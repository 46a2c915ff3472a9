package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// Client resolves free-text tags against the taxonomy service. A tag must be
// language-prefixed ("en:organic"); the service maps synonyms and localized
// names onto one canonical id per taxonomy.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var tagTypes = map[ports.TaxonomyDomain]string{
	ports.TaxonomyCategory: "categories",
	ports.TaxonomyLabel:    "labels",
	ports.TaxonomyOrigin:   "origins",
}

func (c *Client) Resolve(ctx context.Context, taxonomy ports.TaxonomyDomain, value string) (string, error) {
	tagType, ok := tagTypes[taxonomy]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve taxonomy tag",
			fmt.Errorf("unknown taxonomy %q", taxonomy))
	}
	value = strings.TrimSpace(strings.ToLower(value))
	if err := checkLanguagePrefix(value); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("tagtype", tagType)
	query.Set("tags", value)

	entries, err := c.getEntries(ctx, "/api/v2/taxonomy?"+query.Encode(), tagType)
	if err != nil {
		return "", err
	}
	for canonical := range entries {
		return canonical, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "resolve "+tagType+" tag",
		fmt.Errorf("no entry for %q", value))
}

func (c *Client) getEntries(ctx context.Context, path, operation string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return nil, fmt.Errorf("taxonomy %s status: %s", operation, resp.Status)
		}
		return nil, fmt.Errorf("taxonomy %s status: %s: %s", operation, resp.Status, msg)
	}

	var entries map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return entries, nil
}

// checkLanguagePrefix requires a two-letter language code before the first
// colon. Unprefixed values are ambiguous across languages, so they are
// rejected rather than guessed at.
func checkLanguagePrefix(value string) error {
	prefix, _, found := strings.Cut(value, ":")
	if !found || len(prefix) != 2 {
		return domain.WrapError(domain.ErrUnknownLanguagePrefix, "resolve taxonomy tag",
			fmt.Errorf("value %q has no language prefix", value))
	}
	for _, r := range prefix {
		if r < 'a' || r > 'z' {
			return domain.WrapError(domain.ErrUnknownLanguagePrefix, "resolve taxonomy tag",
				fmt.Errorf("value %q has no language prefix", value))
		}
	}
	return nil
}
