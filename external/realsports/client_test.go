package realsports

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/potatocaustic/real-karma-league/internal/domain/livescoring"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return NewClient(ClientConfig{
		BaseURL: "http://realsports.test",
		Token:   "token-1",
		Timeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	})
}

func TestLookupScore_PicksRequestedDay(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/rankeddays/u-42" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		if string(ctx.Request.Header.Peek("real-auth-info")) != "token-1" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"days":[{"day":"2026-10-18","karma":412.5,"rank":87},{"day":"2026-10-17","karma":-20,"rank":900}]}`)
	})

	got, err := client.LookupScore(context.Background(), "u-42", "2026-10-17")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.RawScoreDelta != -20 || got.RankToday != 900 {
		t.Fatalf("unexpected score: %+v", got)
	}

	latest, err := client.LookupScore(context.Background(), "u-42", "")
	if err != nil {
		t.Fatalf("lookup latest: %v", err)
	}
	if latest.RawScoreDelta != 412.5 || latest.RankToday != 87 {
		t.Fatalf("unexpected latest score: %+v", latest)
	}
}

func TestLookupScore_MissingDayScoresZero(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"days":[{"day":"2026-10-01","karma":5,"rank":3}]}`)
	})

	got, err := client.LookupScore(context.Background(), "u-1", "2026-10-18")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != (livescoring.PlayerScore{}) {
		t.Fatalf("expected zero score, got %+v", got)
	}
}

func TestLookupScore_RetriesMalformedThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetBodyString(`{"days":`)
			return
		}
		ctx.SetBodyString(`{"days":[{"day":"2026-10-18","karma":10,"rank":1}]}`)
	})

	got, err := client.LookupScore(context.Background(), "u-1", "2026-10-18")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.RawScoreDelta != 10 {
		t.Fatalf("unexpected score: %+v", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestLookupScore_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})

	_, err := client.LookupScore(context.Background(), "u-1", "2026-10-18")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls.Load() != int32(client.MaxAttempts()) {
		t.Fatalf("expected %d attempts, got %d", client.MaxAttempts(), calls.Load())
	}
}

func TestLookupScore_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	})

	_, err := client.LookupScore(context.Background(), "u-1", "2026-10-18")
	if !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}
