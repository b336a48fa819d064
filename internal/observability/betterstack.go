package observability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const (
	betterStackQueueSize  = 1024
	betterStackBatchSize  = 50
	betterStackFlushEvery = time.Second
	betterStackDrainLimit = 5 * time.Second
)

// startBetterStack tees base into a Better Stack ingest sink for records at or
// above BETTERSTACK_MIN_LEVEL. Records are shipped in JSON array batches.
func startBetterStack(cfg config.Config, base *logging.Logger) (*logging.Logger, shutdownFunc, error) {
	if !cfg.BetterStackEnabled {
		base.Info("betterstack disabled")
		return base, noopShutdown, nil
	}

	endpoint := strings.TrimSpace(cfg.BetterStackEndpoint)
	if endpoint == "" {
		return nil, nil, fmt.Errorf("betterstack endpoint cannot be empty")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	sink := newBetterStackSink(endpoint, strings.TrimSpace(cfg.BetterStackToken), cfg.BetterStackTimeout)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "dt"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	shipCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, cfg.BetterStackMinLevel).
		With([]zap.Field{zap.String("service", cfg.ServiceName), zap.String("env", cfg.AppEnv)})

	logger := logging.FromZap(base.Zap().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, shipCore)
	})))
	logger.Info("betterstack enabled", "endpoint", endpoint, "min_level", cfg.BetterStackMinLevel.String())

	return logger, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, betterStackDrainLimit)
			defer cancel()
		}
		if err := sink.Close(ctx); err != nil {
			return fmt.Errorf("drain betterstack sink: %w", err)
		}
		if dropped := sink.dropped.Load(); dropped > 0 {
			fmt.Fprintf(os.Stderr, "betterstack: %d records dropped on a full queue\n", dropped)
		}
		return nil
	}, nil
}

// betterStackSink is a zapcore.WriteSyncer that queues encoded records and
// posts them from one goroutine. Writes never block the caller; records that
// do not fit the queue are counted and dropped.
type betterStackSink struct {
	endpoint string
	token    string
	client   *http.Client

	mu      sync.RWMutex
	closed  bool
	records chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func newBetterStackSink(endpoint, token string, timeout time.Duration) *betterStackSink {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &betterStackSink{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		records:  make(chan []byte, betterStackQueueSize),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *betterStackSink) Write(p []byte) (int, error) {
	record := bytes.TrimSpace(p)
	if len(record) == 0 {
		return len(p), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return len(p), nil
	}

	// zap reuses its buffer once Write returns.
	select {
	case s.records <- bytes.Clone(record):
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

func (s *betterStackSink) Sync() error { return nil }

func (s *betterStackSink) loop() {
	defer close(s.done)

	ticker := time.NewTicker(betterStackFlushEvery)
	defer ticker.Stop()

	batch := make([][]byte, 0, betterStackBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.post(batch)
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-s.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) == betterStackBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *betterStackSink) post(batch [][]byte) {
	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)

	_ = body.WriteByte('[')
	for i, record := range batch {
		if i > 0 {
			_ = body.WriteByte(',')
		}
		_, _ = body.Write(record)
	}
	_ = body.WriteByte(']')

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body.B))
	if err != nil {
		fmt.Fprintf(os.Stderr, "betterstack: build request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "betterstack: ship %d records: %v\n", len(batch), err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		fmt.Fprintf(os.Stderr, "betterstack: ship %d records: status %d\n", len(batch), resp.StatusCode)
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (s *betterStackSink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.records)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
