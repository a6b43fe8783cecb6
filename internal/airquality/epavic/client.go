// Package epavic provides a client for the EPA Victoria environmental
// monitoring API.
package epavic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/provider/resilience"
	"github.com/airpulse/airpulse/internal/telemetry"
)

const (
	// DefaultBaseURL is the base URL for the EPA Victoria sites API.
	DefaultBaseURL = "https://gateway.api.epa.vic.gov.au/environmentMonitoring/v1/sites"

	// DefaultUserAgent identifies this client to the API gateway.
	DefaultUserAgent = "airpulse/1.0"

	// ProviderName identifies this provider.
	ProviderName = "epa-victoria"

	// DefaultFetchTimeout bounds one fetch including all retry pauses.
	DefaultFetchTimeout = 15 * time.Minute

	// DefaultMaxTries is the total number of attempts per fetch.
	DefaultMaxTries = 10

	// DefaultBaseBackoff is the linear back-off increment between retries.
	DefaultBaseBackoff = 15 * time.Second

	// DefaultJitterMax is the upper bound of the random slice added to
	// each back-off pause.
	DefaultJitterMax = 15 * time.Second
)

// ClientConfig holds configuration for the EPA Victoria client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent in the X-API-Key header on every request.
	APIKey string

	// UserAgent overrides the User-Agent header (defaults to DefaultUserAgent).
	UserAgent string

	// HTTPClient is the HTTP client to use. If nil, a plain http.Client
	// is used; per-fetch deadlines come from FetchTimeout.
	HTTPClient HTTPDoer

	// FetchTimeout bounds one fetch including retry pauses (default: 15m).
	FetchTimeout time.Duration

	// MaxTries is the total number of attempts per fetch (default: 10).
	MaxTries int

	// BaseBackoff is the linear back-off increment (default: 15s).
	BaseBackoff time.Duration

	// JitterMax is the upper bound of the back-off jitter (default: 15s).
	// Zero disables jitter.
	JitterMax time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses resilience.DefaultCircuitBreakerConfig.
	CircuitBreaker *resilience.CircuitBreakerConfig

	// Metrics records request durations and counts. Optional.
	Metrics *telemetry.ProviderMetrics

	// Logger for retry warnings.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an EPA Victoria API client. Rate-limited requests are retried
// with jittered linear back-off; repeated upstream failures open a circuit
// breaker shared by all calls.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	httpClient   HTTPDoer
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	fetchTimeout time.Duration
	maxTries     int
	baseBackoff  time.Duration
	jitterMax    time.Duration
	metrics      *telemetry.ProviderMetrics
	log          zerolog.Logger
}

// NewClient creates a new EPA Victoria client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}

	var cb *gobreaker.CircuitBreaker[*http.Response]
	if cfg.CircuitBreaker != nil {
		cb = resilience.NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker)
	} else {
		defaultCB := resilience.DefaultCircuitBreakerConfig(ProviderName)
		cb = resilience.NewCircuitBreaker[*http.Response](defaultCB)
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		userAgent:    cfg.UserAgent,
		httpClient:   cfg.HTTPClient,
		breaker:      cb,
		fetchTimeout: cfg.FetchTimeout,
		maxTries:     cfg.MaxTries,
		baseBackoff:  cfg.BaseBackoff,
		jitterMax:    cfg.JitterMax,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
	}
}

// FetchParameters retrieves the parameters payload for a site.
func (c *Client) FetchParameters(ctx context.Context, siteID string) (*ParametersResponse, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site id must not be empty")
	}

	start := time.Now()
	url := fmt.Sprintf("%s/%s/parameters", c.baseURL, siteID)
	var payload ParametersResponse
	err := c.getJSON(ctx, url, &payload)
	c.metrics.RecordRequest(ProviderName, "fetch-parameters", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchObservation fetches and extracts the current observation for a site.
// The observation's UpdatedAt is set to the completion time, truncated to
// the second.
func (c *Client) FetchObservation(ctx context.Context, siteID string) (airquality.Observation, error) {
	payload, err := c.FetchParameters(ctx, siteID)
	if err != nil {
		return airquality.Observation{}, err
	}

	obs, err := ExtractObservation(payload)
	if err != nil {
		return airquality.Observation{}, err
	}

	obs.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	return obs, nil
}

// FindSite resolves the monitoring site closest to the given coordinates.
func (c *Client) FindSite(ctx context.Context, lat, lon float64) (airquality.Site, error) {
	start := time.Now()
	url := fmt.Sprintf("%s?environmentalSegment=air&location=[%g,%g]", c.baseURL, lat, lon)

	var result sitesResponse
	err := c.getJSON(ctx, url, &result)
	c.metrics.RecordRequest(ProviderName, "find-site", time.Since(start), err)
	if err != nil {
		return airquality.Site{}, err
	}

	if len(result.Records) == 0 {
		return airquality.Site{}, fmt.Errorf("%w: no site near [%g,%g]", airquality.ErrSiteNotFound, lat, lon)
	}
	return toSite(&result.Records[0]), nil
}

// ListSites retrieves all air monitoring sites, in API order.
func (c *Client) ListSites(ctx context.Context) ([]airquality.Site, error) {
	start := time.Now()
	url := fmt.Sprintf("%s?environmentalSegment=air", c.baseURL)

	var result sitesResponse
	err := c.getJSON(ctx, url, &result)
	c.metrics.RecordRequest(ProviderName, "list-sites", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	sites := make([]airquality.Site, 0, len(result.Records))
	for i := range result.Records {
		sites = append(sites, toSite(&result.Records[i]))
	}
	return sites, nil
}

// getJSON performs one bounded-retry GET and decodes the response body.
//
// Only HTTP 429 is retried, with jittered linear back-off, up to maxTries
// total attempts. 404 and other non-200 statuses fail immediately; the
// next scheduled cycle is the retry boundary for those. The whole call,
// pauses included, is bounded by fetchTimeout.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	bo := newRateLimitBackOff(c.baseBackoff, c.jitterMax)
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxTries-1)), ctx)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			// 5xx counts as a breaker failure; 429 and 404 pass through.
			if r.StatusCode >= 500 {
				r.Body.Close()
				return nil, &resilience.ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open", airquality.ErrTransport))
			}
			var serverErr *resilience.ServerError
			if errors.As(err, &serverErr) {
				return backoff.Permanent(fmt.Errorf("%w: status %d", airquality.ErrTransport, serverErr.StatusCode))
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("%w: %v", airquality.ErrFetchTimeout, err))
			}
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(fmt.Errorf("fetch cancelled: %w", err))
			}
			return backoff.Permanent(fmt.Errorf("%w: %v", airquality.ErrTransport, err))
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", airquality.ErrMalformedResponse, err))
			}
			return nil
		case http.StatusTooManyRequests:
			io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
			return fmt.Errorf("%w: status 429", airquality.ErrRateLimited)
		case http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", airquality.ErrSiteNotFound, url))
		default:
			return backoff.Permanent(fmt.Errorf("%w: unexpected status %d", airquality.ErrTransport, resp.StatusCode))
		}
	}

	notify := func(err error, delay time.Duration) {
		c.log.Warn().
			Dur("delay", delay).
			Err(err).
			Msg("provider busy, pausing before retry")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, airquality.ErrRateLimited):
		return fmt.Errorf("%w: gave up after %d attempts", airquality.ErrRetriesExhausted, c.maxTries)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", airquality.ErrFetchTimeout, err)
	default:
		return err
	}
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
