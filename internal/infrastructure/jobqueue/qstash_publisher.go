package jobqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

// RelegationGameCompletedPath is the internal job route the relegation
// completion event is delivered to.
const RelegationGameCompletedPath = "/v1/internal/jobs/relegation-game-completed"

const maxLoggedBody = 4096

var errQStashTransient = crerr.New("qstash transient failure")

type QStashPublisherConfig struct {
	BaseURL          string
	Token            string
	TargetBaseURL    string
	Retries          int
	InternalJobToken string
	Timeout          time.Duration
	CircuitBreaker   resilience.CircuitBreakerConfig
}

// QStashPublisher delivers jobs to this service's internal routes through
// Upstash QStash, which retries delivery on our behalf.
type QStashPublisher struct {
	client    *http.Client
	publish   string
	target    string
	configErr error
	token     string
	jobToken  string
	retries   int
	breaker   *resilience.CircuitBreaker
	runs      jobscheduler.Repository
	logger    *logging.Logger
	now       func() time.Time
}

// NewQStashPublisher never fails; a bad base URL is reported by every Enqueue
// so a misconfigured queue shows up in job runs instead of at boot.
func NewQStashPublisher(cfg QStashPublisherConfig, logger *logging.Logger) *QStashPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	p := &QStashPublisher{
		client:   &http.Client{Timeout: timeout},
		token:    strings.TrimSpace(cfg.Token),
		jobToken: strings.TrimSpace(cfg.InternalJobToken),
		retries:  cfg.Retries,
		breaker:  resilience.NewCircuitBreakerFromConfig(cfg.CircuitBreaker),
		logger:   logger,
		now:      time.Now,
	}
	var baseErr, targetErr error
	p.publish, baseErr = httpBaseURL(cfg.BaseURL)
	p.target, targetErr = httpBaseURL(cfg.TargetBaseURL)
	p.configErr = errors.Join(
		wrapIf(baseErr, "invalid QSTASH_BASE_URL"),
		wrapIf(targetErr, "invalid QSTASH_TARGET_BASE_URL"),
	)
	return p
}

// WithRunRecorder records a sent or failed job_runs entry for every publish.
func (p *QStashPublisher) WithRunRecorder(runs jobscheduler.Repository) *QStashPublisher {
	p.runs = runs
	return p
}

// PublishGameCompleted queues the relegation completion event, deduplicated by
// season and game so a re-finalized game is delivered once.
func (p *QStashPublisher) PublishGameCompleted(ctx context.Context, event usecase.GameCompletedEvent) error {
	dedupID := "relegation-game-completed-" + dedupSegment(event.SeasonID) + "-" + dedupSegment(event.GameID)
	err := p.Enqueue(ctx, RelegationGameCompletedPath, event, 0, dedupID)

	run := jobscheduler.RunEvent{
		RunID:      dedupID,
		JobName:    jobscheduler.JobRelegationGame,
		Trigger:    usecase.TriggerQueue,
		Status:     jobscheduler.StatusSent,
		Summary:    map[string]any{"season_id": event.SeasonID, "game_id": event.GameID},
		OccurredAt: p.now().UTC(),
	}
	if err != nil {
		run.Status = jobscheduler.StatusFailed
		run.ErrorMessage = err.Error()
	}
	p.recordRun(ctx, run)
	return err
}

// Enqueue publishes payload for delivery to path on this service. A nil
// payload is sent as {}.
func (p *QStashPublisher) Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error {
	if err := p.breaker.Allow(); err != nil {
		p.logger.WarnContext(ctx, "qstash circuit breaker rejected request", "state", p.breaker.State())
		return fmt.Errorf("%w: qstash: %v", usecase.ErrDependencyUnavailable, err)
	}
	if p.configErr != nil {
		return p.configErr
	}
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return crerr.New("job path is required")
	}
	path = "/" + path

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal job payload")
	}

	msg := message{
		targetURL: p.target + path,
		delay:     delay,
		dedupID:   strings.TrimSpace(deduplicationID),
		retries:   p.retries,
		forward:   p.jobToken != "",
	}
	publishURL := p.publish + "/v2/publish/" + msg.targetURL

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("qstash.target_url", msg.targetURL),
			attribute.String("qstash.deduplication_id", msg.dedupID),
		)
	}
	p.logger.DebugContext(ctx, "qstash publish request",
		"path", path,
		"target_url", msg.targetURL,
		"curl_preview", curlPreview(publishURL, msg.headers(p.token, p.jobToken, true), truncate(string(body), maxLoggedBody)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publishURL, bytes.NewReader(body))
	if err != nil {
		return crerr.Wrap(err, "create qstash request")
	}
	for _, h := range msg.headers(p.token, p.jobToken, false) {
		req.Header.Set(h.name, h.value)
	}

	err = p.send(req, msg.targetURL)
	if errors.Is(err, errQStashTransient) {
		p.breaker.RecordFailure()
	} else {
		p.breaker.RecordSuccess()
	}
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "qstash job published", "path", path, "delay", delaySeconds(delay), "deduplication_id", msg.dedupID)
	return nil
}

// send posts req and classifies failures: transport errors, timeouts, 429
// and 5xx are transient and count against the breaker.
func (p *QStashPublisher) send(req *http.Request, targetURL string) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: publish qstash job target_url=%s: %v", errQStashTransient, targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	err = fmt.Errorf("publish qstash job status=%d target_url=%s body=%s", resp.StatusCode, targetURL, bytes.TrimSpace(raw))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %v", errQStashTransient, err)
	default:
		return err
	}
}

func (p *QStashPublisher) recordRun(ctx context.Context, event jobscheduler.RunEvent) {
	if p.runs == nil {
		return
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		event.TraceID, event.SpanID = sc.TraceID().String(), sc.SpanID().String()
	}
	if err := p.runs.UpsertEvent(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "record queued job run failed", "run_id", event.RunID, "error", err)
	}
}

func httpBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", crerr.New("value is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", raw, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", crerr.Newf("%q has empty host", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func wrapIf(err error, msg string) error {
	if err == nil {
		return nil
	}
	return crerr.Wrap(err, msg)
}

// dedupSegment keeps QStash deduplication ids to [a-zA-Z0-9_-].
func dedupSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, value)
}

func delaySeconds(delay time.Duration) string {
	if delay <= 0 {
		return "0s"
	}
	return strconv.FormatInt(int64(delay.Round(time.Second)/time.Second), 10) + "s"
}
