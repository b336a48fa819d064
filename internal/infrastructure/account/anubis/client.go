package anubis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"

	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	"github.com/potatocaustic/real-karma-league/internal/platform/cache"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var errAnubisTransient = crerr.New("anubis transient failure")

type Config struct {
	BaseURL        string
	IntrospectPath string
	AdminKey       string
	Timeout        time.Duration
	CacheTTL       time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client verifies bearer tokens against the Anubis introspection endpoint.
// Active principals are cached by token hash for CacheTTL.
type Client struct {
	httpClient    *http.Client
	introspectURL string
	adminKey      string
	breaker       *resilience.CircuitBreaker
	principals    *cache.Store[user.Principal]
	logger        *logging.Logger
}

func NewClient(httpClient *http.Client, cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var principals *cache.Store[user.Principal]
	if cfg.CacheTTL > 0 {
		principals = cache.NewStore[user.Principal](cfg.CacheTTL)
	}

	breaker := resilience.NewCircuitBreakerFromConfig(cfg.CircuitBreaker)
	breaker.OnStateChange(func(from, to resilience.CircuitState) {
		logger.Warn("anubis circuit breaker state changed", "from", from, "to", to)
	})

	return &Client{
		httpClient:    httpClient,
		introspectURL: introspectEndpoint(cfg.BaseURL, cfg.IntrospectPath),
		adminKey:      strings.TrimSpace(cfg.AdminKey),
		breaker:       breaker,
		principals:    principals,
		logger:        logger,
	}
}

func (c *Client) VerifyAccessToken(ctx context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: token is required", usecase.ErrUnauthorized)
	}
	if c.principals == nil {
		return c.introspect(ctx, token)
	}

	return c.principals.GetOrLoad(ctx, principalKey(token), func(ctx context.Context) (user.Principal, error) {
		return c.introspect(ctx, token)
	})
}

func (c *Client) introspect(ctx context.Context, token string) (user.Principal, error) {
	var principal user.Principal
	err := c.breaker.Execute(func() error {
		var err error
		principal, err = c.doIntrospect(ctx, token)
		return err
	}, tripsBreaker)
	if crerr.Is(err, resilience.ErrCircuitOpen) {
		c.logger.WarnContext(ctx, "anubis circuit breaker rejected request", "state", c.breaker.State())
		return user.Principal{}, fmt.Errorf("%w: anubis: %v", usecase.ErrDependencyUnavailable, err)
	}
	if crerr.Is(err, errAnubisTransient) {
		return user.Principal{}, fmt.Errorf("%w: %v", usecase.ErrDependencyUnavailable, err)
	}
	return principal, err
}

func (c *Client) doIntrospect(ctx context.Context, token string) (user.Principal, error) {
	encoded, err := jsonAPI.Marshal(introspectRequest{Token: token})
	if err != nil {
		return user.Principal{}, crerr.Wrap(err, "marshal introspect request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.introspectURL, bytes.NewReader(encoded))
	if err != nil {
		return user.Principal{}, crerr.Wrap(err, "create introspect request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.adminKey != "" {
		req.Header.Set("x-admin-key", c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return user.Principal{}, fmt.Errorf("%w: request introspection: %v", errAnubisTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return user.Principal{}, fmt.Errorf("%w: read introspect response: %v", errAnubisTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return user.Principal{}, fmt.Errorf("%w: introspection denied", usecase.ErrUnauthorized)
	case resp.StatusCode == http.StatusForbidden:
		// A forbidden introspection call means our admin key is wrong, not the caller's token.
		c.logger.ErrorContext(ctx, "anubis rejected admin key", "status_code", resp.StatusCode)
		return user.Principal{}, fmt.Errorf("%w: anubis rejected admin key", usecase.ErrDependencyUnavailable)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		c.logger.WarnContext(ctx, "anubis introspection unavailable", "status_code", resp.StatusCode)
		return user.Principal{}, fmt.Errorf("%w: status %d", errAnubisTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return user.Principal{}, crerr.Newf("anubis introspection failed with status %d", resp.StatusCode)
	}

	var decoded introspectResponse
	if err := jsonAPI.Unmarshal(body, &decoded); err != nil {
		return user.Principal{}, crerr.Wrap(err, "unmarshal introspect response")
	}
	if !decoded.Active {
		return user.Principal{}, fmt.Errorf("%w: inactive token", usecase.ErrUnauthorized)
	}
	if strings.TrimSpace(decoded.UserID) == "" {
		return user.Principal{}, crerr.New("invalid introspect response: user_id is empty")
	}

	return user.Principal{
		UserID: decoded.UserID,
		Email:  decoded.Email,
	}, nil
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active bool   `json:"active"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
