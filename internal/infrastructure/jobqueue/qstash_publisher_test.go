package jobqueue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/docstore"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/memory"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

func newTestPublisher(baseURL string, breaker resilience.CircuitBreakerConfig) *QStashPublisher {
	return NewQStashPublisher(QStashPublisherConfig{
		BaseURL:          baseURL,
		Token:            "qstash-token",
		TargetBaseURL:    "https://rkl.example.com",
		Retries:          3,
		InternalJobToken: "job-secret",
		Timeout:          time.Second,
		CircuitBreaker:   breaker,
	}, logging.NewNop())
}

func TestPublishGameCompleted_SendsDeduplicatedJob(t *testing.T) {
	t.Parallel()

	type captured struct {
		path    string
		headers http.Header
		body    []byte
	}
	got := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{path: r.URL.Path, headers: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	store := memory.NewDocumentStore()
	runs := docstore.NewJobRunRepository(store)
	publisher := newTestPublisher(server.URL, resilience.CircuitBreakerConfig{}).WithRunRecorder(runs)

	event := usecase.GameCompletedEvent{SeasonID: "S9", GameID: "relegation-S9"}
	if err := publisher.PublishGameCompleted(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	req := <-got
	if !strings.HasSuffix(req.path, "/v2/publish/https://rkl.example.com"+RelegationGameCompletedPath) &&
		!strings.HasSuffix(req.path, "/v2/publish/https:/rkl.example.com"+RelegationGameCompletedPath) {
		t.Fatalf("unexpected publish path: %s", req.path)
	}
	if req.headers.Get("Authorization") != "Bearer qstash-token" {
		t.Fatalf("missing bearer token: %v", req.headers)
	}
	if req.headers.Get("Upstash-Deduplication-Id") != "relegation-game-completed-S9-relegation-S9" {
		t.Fatalf("unexpected dedup id: %q", req.headers.Get("Upstash-Deduplication-Id"))
	}
	if req.headers.Get("Upstash-Forward-X-Internal-Job-Token") != "job-secret" {
		t.Fatalf("internal job token not forwarded")
	}
	if req.headers.Get("Upstash-Retries") != "3" {
		t.Fatalf("unexpected retries header: %q", req.headers.Get("Upstash-Retries"))
	}

	var sent usecase.GameCompletedEvent
	if err := sonic.Unmarshal(req.body, &sent); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if sent.SeasonID != "S9" || sent.GameID != "relegation-S9" {
		t.Fatalf("unexpected body: %+v", sent)
	}

	recent, err := runs.ListRecent(context.Background(), jobscheduler.JobRelegationGame, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != jobscheduler.StatusSent || recent[0].SentAt == nil {
		t.Fatalf("unexpected runs: %+v", recent)
	}
}

func TestEnqueue_TransientFailuresOpenBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	publisher := newTestPublisher(server.URL, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})

	for range 2 {
		err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/sample", nil, 0, "")
		if !errors.Is(err, errQStashTransient) {
			t.Fatalf("expected transient error, got %v", err)
		}
	}

	err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/sample", nil, 0, "")
	if !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected open breaker to reject, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestEnqueue_RejectsBadConfiguration(t *testing.T) {
	t.Parallel()

	publisher := NewQStashPublisher(QStashPublisherConfig{BaseURL: "ftp://qstash", TargetBaseURL: "https://rkl.example.com"}, logging.NewNop())
	if err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/sample", nil, 0, ""); err == nil || !strings.Contains(err.Error(), "QSTASH_BASE_URL") {
		t.Fatalf("expected base url validation error, got %v", err)
	}
	if err := publisher.Enqueue(context.Background(), " / ", nil, 0, ""); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestCurlPreview_MasksSecrets(t *testing.T) {
	t.Parallel()

	msg := message{targetURL: "https://rkl.example.com/x", delay: 30 * time.Second, dedupID: "d-1", retries: 2, forward: true}
	got := curlPreview("https://qstash/v2/publish/x", msg.headers("qstash-token", "job-secret", true), `{"a":"it's"}`)
	for _, want := range []string{"Bearer ***", "Upstash-Delay: 30s", "Upstash-Deduplication-Id: d-1", "X-Internal-Job-Token: ***", `'{"a":"it'"'"'s"}'`} {
		if !strings.Contains(got, want) {
			t.Fatalf("preview %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "qstash-token") || strings.Contains(got, "job-secret") {
		t.Fatalf("preview leaked a secret: %q", got)
	}
	if delaySeconds(1500*time.Millisecond) != "2s" || delaySeconds(0) != "0s" {
		t.Fatalf("unexpected delay formatting")
	}
}

func TestNewQStashPublisher_ReportsBothBadURLs(t *testing.T) {
	t.Parallel()

	publisher := NewQStashPublisher(QStashPublisherConfig{BaseURL: "", TargetBaseURL: "rkl.example.com"}, nil)
	err := publisher.Enqueue(context.Background(), "/v1/internal/jobs/sample", nil, 0, "")
	if err == nil || !strings.Contains(err.Error(), "QSTASH_BASE_URL") || !strings.Contains(err.Error(), "QSTASH_TARGET_BASE_URL") {
		t.Fatalf("expected both url errors, got %v", err)
	}
}
