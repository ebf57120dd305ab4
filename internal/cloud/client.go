// Package cloud talks to a Blynk-style IoT broker over its external REST API.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/solarlink/solarctl/internal/config"
)

// maxBody caps how much of a response is read. Pin values are a few bytes.
const maxBody = 64 << 10

// ErrMissingToken is returned by NewClient when no auth token is configured.
var ErrMissingToken = errors.New("cloud token not configured (set cloud.token or SOLARCTL_CLOUD_TOKEN)")

// HTTPError is a non-2xx response from the broker.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("broker returned %d", e.StatusCode)
	}
	return fmt.Sprintf("broker returned %d: %s", e.StatusCode, e.Body)
}

// Client reads and writes virtual pins.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[string]
	log        logrus.FieldLogger
}

// NewClient builds a client from cfg. Requests are limited to
// cfg.RequestsPerSecond (0 means unlimited). With cfg.BreakerFailures set,
// requests also go through a circuit breaker that opens after that many
// consecutive transport or 5xx failures. Zero disables the breaker, so every
// call reaches the broker.
func NewClient(cfg config.CloudConfig, log logrus.FieldLogger) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	log = log.WithField("component", "cloud")

	c := &Client{
		baseURL:    scheme + "://" + strings.TrimSuffix(cfg.Server, "/") + "/external/api",
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
	}
	if cfg.BreakerFailures == 0 {
		return c, nil
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "cloud:" + cfg.Server,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			var herr *HTTPError
			if errors.As(err, &herr) {
				return herr.StatusCode < 500
			}
			return err == nil
		},
	})
	return c, nil
}

// BaseURL returns the API root, e.g. https://blynk.cloud/external/api.
func (c *Client) BaseURL() string { return c.baseURL }

// Get returns the raw text value of pin.
func (c *Client) Get(ctx context.Context, pin string) (string, error) {
	return c.do(ctx, "get", pin, pin)
}

// Update sets pin to value.
func (c *Client) Update(ctx context.Context, pin, value string) error {
	_, err := c.do(ctx, "update", pin, pin+"="+url.QueryEscape(value))
	return err
}

func (c *Client) do(ctx context.Context, endpoint, pin, param string) (string, error) {
	log := c.log.WithFields(logrus.Fields{"endpoint": endpoint, "pin": pin})

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	// token first, then the bare pin parameter, as the broker expects
	u := c.baseURL + "/" + endpoint + "?token=" + url.QueryEscape(c.token) + "&" + param

	fetch := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("request %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return "", fmt.Errorf("read %s response: %w", endpoint, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return string(data), nil
	}

	var body string
	var err error
	if c.breaker != nil {
		body, err = c.breaker.Execute(fetch)
	} else {
		body, err = fetch()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("broker circuit open: %w", err)
		}
		log.WithError(err).Debug("Request failed")
		return "", err
	}

	config.Debugf("%s %s -> %q", endpoint, pin, body)
	return body, nil
}

// State returns the circuit breaker state. A disabled breaker is always closed.
func (c *Client) State() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}
