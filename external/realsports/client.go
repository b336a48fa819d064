package realsports

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/potatocaustic/real-karma-league/internal/domain/livescoring"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

const (
	defaultBaseURL   = "https://web.realsports.io"
	defaultVersion   = "27"
	defaultUserAgent = "real-karma-league/1.0"
	maxBodyBytes     = 1 << 20
)

var errRealTransient = crerr.New("realsports transient failure")

type ClientConfig struct {
	BaseURL        string
	Token          string
	Version        string
	Timeout        time.Duration
	Retry          resilience.RetryConfig
	RatePerSecond  float64
	RateBurst      int
	CircuitBreaker resilience.CircuitBreakerConfig
	Logger         *logging.Logger
	// Dial overrides the transport dialer; tests plug in fasthttputil listeners.
	Dial fasthttp.DialFunc
}

// Client looks up a player's karma for a given day from the RealSports ranked-days feed.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	token   string
	version string
	timeout time.Duration
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	flight  resilience.Group[livescoring.PlayerScore]
	logger  *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("realsports")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = defaultVersion
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.RateBurst, 1))
	}

	breaker := resilience.NewCircuitBreakerFromConfig(cfg.CircuitBreaker)
	breaker.OnStateChange(func(from, to resilience.CircuitState) {
		logger.Warn("score lookup circuit breaker state changed", "from", from, "to", to)
	})

	return &Client{
		http: &fasthttp.Client{
			Name:                defaultUserAgent,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxResponseBodySize: maxBodyBytes,
			Dial:                cfg.Dial,
		},
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		version: version,
		timeout: timeout,
		retry:   resilience.NormalizeRetryConfig(cfg.Retry),
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// MaxAttempts is the number of tries made before LookupScore gives up.
func (c *Client) MaxAttempts() int {
	return c.retry.MaxAttempts
}

// LookupScore returns the player's karma delta and rank for gameDate (YYYY-MM-DD).
// An empty gameDate means the most recent ranked day. A player with no entry
// for the day scores zero with rank zero.
func (c *Client) LookupScore(ctx context.Context, playerID, gameDate string) (livescoring.PlayerScore, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return livescoring.PlayerScore{}, fmt.Errorf("%w: player id is required", usecase.ErrInvalidInput)
	}

	key := playerID + "@" + gameDate
	score, _, err := c.flight.Do(key, func() (livescoring.PlayerScore, error) {
		return resilience.Retry(ctx, c.retry, func() (livescoring.PlayerScore, error) {
			return c.lookupOnce(ctx, playerID, gameDate)
		})
	})
	if err != nil {
		return livescoring.PlayerScore{}, err
	}
	return score, nil
}

func (c *Client) lookupOnce(ctx context.Context, playerID, gameDate string) (livescoring.PlayerScore, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return livescoring.PlayerScore{}, resilience.Permanent(err)
	}

	var body []byte
	err := c.breaker.Execute(func() error {
		raw, reqErr := c.get(ctx, "/rankeddays/"+url.PathEscape(playerID), url.Values{"sort": {"latest"}})
		body = raw
		return reqErr
	}, isTransient)
	if err != nil {
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			return livescoring.PlayerScore{}, resilience.Permanent(fmt.Errorf("%w: score service circuit open", usecase.ErrDependencyUnavailable))
		}
		if !isTransient(err) {
			return livescoring.PlayerScore{}, resilience.Permanent(err)
		}
		return livescoring.PlayerScore{}, err
	}

	var envelope rankedDaysEnvelope
	if len(body) == 0 {
		return livescoring.PlayerScore{}, crerr.Wrap(errRealTransient, "empty response body")
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return livescoring.PlayerScore{}, crerr.Wrapf(errRealTransient, "decode ranked days: %v", err)
	}
	return pickDay(envelope.Days, gameDate), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}
	req.SetRequestURI(fullURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("real-device-type", "desktop_web")
	req.Header.Set("real-version", c.version)
	if c.token != "" {
		req.Header.Set("real-auth-info", c.token)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, crerr.Wrapf(errRealTransient, "send request: %v", err)
	}

	status := resp.StatusCode()
	raw := append([]byte(nil), resp.Body()...)
	switch {
	case status >= 200 && status < 300:
		return raw, nil
	case status == fasthttp.StatusTooManyRequests || status >= fasthttp.StatusInternalServerError:
		return nil, crerr.Wrapf(errRealTransient, "score service status=%d body=%s", status, abbreviateBody(raw))
	case status == fasthttp.StatusNotFound:
		return nil, fmt.Errorf("%w: player not found at score service", usecase.ErrNotFound)
	default:
		return nil, fmt.Errorf("score service status=%d body=%s", status, abbreviateBody(raw))
	}
}

func pickDay(days []rankedDay, gameDate string) livescoring.PlayerScore {
	for _, d := range days {
		if gameDate != "" && d.Day != gameDate {
			continue
		}
		var out livescoring.PlayerScore
		if d.Karma != nil {
			out.RawScoreDelta = *d.Karma
		}
		if d.Rank != nil {
			out.RankToday = *d.Rank
		}
		return out
	}
	return livescoring.PlayerScore{}
}

func isTransient(err error) bool {
	return err != nil && crerr.Is(err, errRealTransient)
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
