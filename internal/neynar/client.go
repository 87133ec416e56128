package neynar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PhenomenonIndexer/internal/config"
	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/utils/httpclient"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL Neynar production API
	DefaultBaseURL = "https://api.neynar.com"
	// MaxAddresses per bulk-by-address call
	MaxAddresses = 350

	cacheSize = 4096
)

// ErrTooManyAddresses more than MaxAddresses valid addresses in one lookup
var ErrTooManyAddresses = fmt.Errorf("max %d addresses", MaxAddresses)

// Client Farcaster profile lookup by verified address
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *expirable.LRU[string, cachedProfile]
	logger     *logrus.Logger
}

type cachedProfile struct {
	profile interfaces.Profile
	found   bool
}

// NewClient profiles are cached for cfg.CacheTTL, misses included
func NewClient(cfg config.NeynarConfig, logger *logrus.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.NewHTTPClient(httpclient.Options{Timeout: cfg.Timeout, Proxy: cfg.Proxy}, logger),
		cache:      expirable.NewLRU[string, cachedProfile](cacheSize, nil, ttl),
		logger:     logger,
	}
}

type apiUser struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	PfpURL      *string `json:"pfp_url"`
}

// ValidAddresses keeps well-formed 0x addresses, lower-cased and de-duplicated
func ValidAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if !strings.HasPrefix(a, "0x") || len(a) != 42 {
			continue
		}
		a = model.NormalizeAddress(a)
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// LookupProfiles returns profiles for the addresses that have one, keyed by
// lower-cased address. Malformed addresses are ignored.
func (c *Client) LookupProfiles(ctx context.Context, addresses []string) (map[string]interfaces.Profile, error) {
	addrs := ValidAddresses(addresses)
	if len(addrs) > MaxAddresses {
		return nil, ErrTooManyAddresses
	}
	result := make(map[string]interfaces.Profile, len(addrs))
	var missing []string
	for _, a := range addrs {
		if hit, ok := c.cache.Get(a); ok {
			if hit.found {
				result[a] = hit.profile
			}
			continue
		}
		missing = append(missing, a)
	}
	if len(missing) == 0 {
		return result, nil
	}
	if c.apiKey == "" {
		return result, nil
	}

	fetched, err := c.fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, a := range missing {
		p, ok := fetched[a]
		c.cache.Add(a, cachedProfile{profile: p, found: ok})
		if ok {
			result[a] = p
		}
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, addrs []string) (map[string]interfaces.Profile, error) {
	endpoint := c.baseURL + "/v2/farcaster/user/bulk-by-address/?addresses=" + url.QueryEscape(strings.Join(addrs, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("neynar request failed")
		return nil, fmt.Errorf("neynar request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read neynar response: %w", err)
	}
	// unknown addresses come back as 404
	if resp.StatusCode == http.StatusNotFound {
		return map[string]interfaces.Profile{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithField("status", resp.StatusCode).WithField("body", string(body)).Warn("neynar error response")
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode neynar response: %w", err)
	}
	out := make(map[string]interfaces.Profile, len(raw))
	for key, value := range raw {
		if !strings.HasPrefix(key, "0x") || len(key) != 42 {
			continue
		}
		user, ok := firstUser(value)
		if !ok {
			continue
		}
		p := interfaces.Profile{Username: user.Username, DisplayName: user.DisplayName, PfpURL: user.PfpURL}
		if p.DisplayName == nil {
			p.DisplayName = p.Username
		}
		out[model.NormalizeAddress(key)] = p
	}
	c.logger.WithField("requested", len(addrs)).WithField("found", len(out)).Debug("neynar lookup")
	return out, nil
}

// firstUser accepts either a user array or a single user object
func firstUser(value json.RawMessage) (apiUser, bool) {
	var list []apiUser
	if err := json.Unmarshal(value, &list); err == nil {
		if len(list) == 0 {
			return apiUser{}, false
		}
		return list[0], true
	}
	var single apiUser
	if err := json.Unmarshal(value, &single); err == nil {
		return single, true
	}
	return apiUser{}, false
}

// APIError non-2xx upstream response
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neynar status %d: %s", e.Status, e.Body)
}

// IsAPIError reports the upstream status carried by err, if any
func IsAPIError(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}
