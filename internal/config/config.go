package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                  string
	ServiceName             string
	ServiceVersion          string
	HTTPAddr                string
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	LogLevel                logging.Level
	CORSAllowedOrigins      []string
	SwaggerEnabled          bool
	StoreBackend            string
	DBURL                   string
	DBDisablePreparedBinary bool
	StoreMaxBatchOps        int
	CacheEnabled            bool
	CacheTTL                time.Duration

	ScoreAPIBaseURL             string
	ScoreAPIToken               string
	ScoreAPIVersion             string
	ScoreAPITimeout             time.Duration
	ScoreAPIMaxAttempts         int
	ScoreAPIBackoffInitial      time.Duration
	ScoreAPIBackoffMax          time.Duration
	ScoreAPIRatePerSec          float64
	ScoreAPIRateBurst           int
	ScoreAPICircuitEnabled      bool
	ScoreAPICircuitFailureCount int
	ScoreAPICircuitOpenTimeout  time.Duration
	ScoreAPICircuitHalfOpenMax  int

	ScoringDefaultIntervalMinutes int
	ScoringSampleSize             int
	ScoringSampleThreshold        int
	ScoringFetchWorkers           int
	ScoringFetchJitterMax         time.Duration
	ScoringFinalizeConcurrency    int
	PromotionBatchSize            int

	SchedulerEnabled          bool
	SchedulerTimezone         string
	SchedulerLocation         *time.Location
	SchedulerSamplerCron      string
	SchedulerAutoStopCron     string
	SchedulerAutoFinalizeCron string
	SchedulerRolloverCron     string

	AnubisBaseURL               string
	AnubisIntrospectURL         string
	AnubisAdminKey              string
	AnubisTimeout               time.Duration
	AnubisCircuitEnabled        bool
	AnubisCircuitFailureCount   int
	AnubisCircuitOpenTimeout    time.Duration
	AnubisCircuitHalfOpenMaxReq int
	InternalJobToken            string

	QStashEnabled               bool
	QStashBaseURL               string
	QStashToken                 string
	QStashTargetBaseURL         string
	QStashRetries               int
	QStashCircuitEnabled        bool
	QStashCircuitFailureCount   int
	QStashCircuitOpenTimeout    time.Duration
	QStashCircuitHalfOpenMaxReq int

	UptraceEnabled             bool
	UptraceDSN                 string
	UptraceLogsEnabled         bool
	BetterStackEnabled         bool
	BetterStackEndpoint        string
	BetterStackToken           string
	BetterStackTimeout         time.Duration
	BetterStackMinLevel        logging.Level
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
	PprofEnabled               bool
	PprofAddr                  string
}

// circuitSettings is the shared shape of the *_CIRCUIT_* groups.
type circuitSettings struct {
	enabled       bool
	failureCount  int
	openTimeout   time.Duration
	halfOpenMaxRq int
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		ServiceName:        getEnv("APP_SERVICE_NAME", "real-karma-league-api"),
		ServiceVersion:     getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:           getEnv("APP_HTTP_ADDR", ":8080"),
		LogLevel:           logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	if cfg.ReadTimeout, err = parsePositiveDuration("APP_READ_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = parsePositiveDuration("APP_WRITE_TIMEOUT", "30s"); err != nil {
		return Config{}, err
	}

	swaggerDefault := "true"
	if appEnv == EnvProd {
		swaggerDefault = "false"
	}
	if cfg.SwaggerEnabled, err = parseBool("SWAGGER_ENABLED", swaggerDefault); err != nil {
		return Config{}, err
	}

	if err := loadStore(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadScoreAPI(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadScoring(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadScheduler(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadAuth(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadQueue(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadObservability(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadStore(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", StoreMemory)))
	switch backend {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: valid values are %s, %s", backend, StoreMemory, StorePostgres)
	}
	cfg.StoreBackend = backend
	cfg.DBURL = strings.TrimSpace(getEnv("DB_URL", ""))
	if backend == StorePostgres && cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required when STORE_BACKEND=postgres")
	}

	var err error
	if cfg.DBDisablePreparedBinary, err = parseBool("DB_DISABLE_PREPARED_BINARY_RESULT", "true"); err != nil {
		return err
	}
	if cfg.StoreMaxBatchOps, err = parseMinInt("STORE_MAX_BATCH_OPS", 500, 1); err != nil {
		return err
	}
	if cfg.CacheEnabled, err = parseBool("CACHE_ENABLED", "true"); err != nil {
		return err
	}
	if cfg.CacheTTL, err = parsePositiveDuration("CACHE_TTL", "60s"); err != nil {
		return err
	}
	return nil
}

func loadScoreAPI(cfg *Config) error {
	cfg.ScoreAPIBaseURL = strings.TrimSpace(getEnv("SCORE_API_BASE_URL", "https://web.realsports.io"))
	cfg.ScoreAPIToken = strings.TrimSpace(getEnv("SCORE_API_TOKEN", ""))
	cfg.ScoreAPIVersion = strings.TrimSpace(getEnv("SCORE_API_VERSION", "27"))

	var err error
	if cfg.ScoreAPITimeout, err = parsePositiveDuration("SCORE_API_TIMEOUT", "10s"); err != nil {
		return err
	}
	if cfg.ScoreAPIMaxAttempts, err = parseMinInt("SCORE_API_MAX_ATTEMPTS", 3, 1); err != nil {
		return err
	}
	if cfg.ScoreAPIBackoffInitial, err = parsePositiveDuration("SCORE_API_BACKOFF_INITIAL", "200ms"); err != nil {
		return err
	}
	if cfg.ScoreAPIBackoffMax, err = parsePositiveDuration("SCORE_API_BACKOFF_MAX", "2s"); err != nil {
		return err
	}
	if cfg.ScoreAPIBackoffMax < cfg.ScoreAPIBackoffInitial {
		return fmt.Errorf("SCORE_API_BACKOFF_MAX must be >= SCORE_API_BACKOFF_INITIAL")
	}

	rateRaw := strings.TrimSpace(getEnv("SCORE_API_RATE_PER_SEC", "10"))
	if cfg.ScoreAPIRatePerSec, err = strconv.ParseFloat(rateRaw, 64); err != nil {
		return fmt.Errorf("parse SCORE_API_RATE_PER_SEC: %w", err)
	}
	if cfg.ScoreAPIRatePerSec < 0 {
		return fmt.Errorf("SCORE_API_RATE_PER_SEC must be >= 0")
	}
	if cfg.ScoreAPIRateBurst, err = parseMinInt("SCORE_API_RATE_BURST", 5, 1); err != nil {
		return err
	}

	circuit, err := loadCircuit("SCORE_API")
	if err != nil {
		return err
	}
	cfg.ScoreAPICircuitEnabled = circuit.enabled
	cfg.ScoreAPICircuitFailureCount = circuit.failureCount
	cfg.ScoreAPICircuitOpenTimeout = circuit.openTimeout
	cfg.ScoreAPICircuitHalfOpenMax = circuit.halfOpenMaxRq
	return nil
}

func loadScoring(cfg *Config) error {
	var err error
	if cfg.ScoringDefaultIntervalMinutes, err = parseMinInt("SCORING_DEFAULT_INTERVAL_MINUTES", 5, 1); err != nil {
		return err
	}
	if cfg.ScoringSampleSize, err = parseMinInt("SCORING_SAMPLE_SIZE", 3, 1); err != nil {
		return err
	}
	if cfg.ScoringSampleThreshold, err = parseMinInt("SCORING_SAMPLE_THRESHOLD", 2, 1); err != nil {
		return err
	}
	if cfg.ScoringSampleThreshold > cfg.ScoringSampleSize {
		return fmt.Errorf("SCORING_SAMPLE_THRESHOLD must be <= SCORING_SAMPLE_SIZE")
	}
	if cfg.ScoringFetchWorkers, err = parseMinInt("SCORING_FETCH_WORKERS", 4, 1); err != nil {
		return err
	}
	if cfg.ScoringFetchJitterMax, err = time.ParseDuration(getEnv("SCORING_FETCH_JITTER_MAX", "0s")); err != nil {
		return fmt.Errorf("parse SCORING_FETCH_JITTER_MAX: %w", err)
	}
	if cfg.ScoringFetchJitterMax < 0 {
		return fmt.Errorf("SCORING_FETCH_JITTER_MAX must be >= 0")
	}
	if cfg.ScoringFinalizeConcurrency, err = parseMinInt("SCORING_FINALIZE_CONCURRENCY", 2, 1); err != nil {
		return err
	}
	if cfg.PromotionBatchSize, err = parseMinInt("PROMOTION_BATCH_SIZE", 450, 1); err != nil {
		return err
	}
	if cfg.PromotionBatchSize > cfg.StoreMaxBatchOps {
		return fmt.Errorf("PROMOTION_BATCH_SIZE must be <= STORE_MAX_BATCH_OPS (%d)", cfg.StoreMaxBatchOps)
	}
	return nil
}

func loadScheduler(cfg *Config) error {
	var err error
	if cfg.SchedulerEnabled, err = parseBool("SCHEDULER_ENABLED", "true"); err != nil {
		return err
	}
	cfg.SchedulerTimezone = strings.TrimSpace(getEnv("SCHEDULER_TIMEZONE", "America/Chicago"))
	if cfg.SchedulerLocation, err = time.LoadLocation(cfg.SchedulerTimezone); err != nil {
		return fmt.Errorf("parse SCHEDULER_TIMEZONE: %w", err)
	}

	crons := []struct {
		key      string
		fallback string
		dst      *string
	}{
		{key: "SCHEDULER_SAMPLER_CRON", fallback: "* * * * *", dst: &cfg.SchedulerSamplerCron},
		{key: "SCHEDULER_AUTO_STOP_CRON", fallback: "0 2 * * *", dst: &cfg.SchedulerAutoStopCron},
		{key: "SCHEDULER_AUTO_FINALIZE_CRON", fallback: "15 2 * * *", dst: &cfg.SchedulerAutoFinalizeCron},
		{key: "SCHEDULER_ROLLOVER_CRON", fallback: "30 3 * * *", dst: &cfg.SchedulerRolloverCron},
	}
	for _, c := range crons {
		expr, err := parseCron(c.key, c.fallback)
		if err != nil {
			return err
		}
		*c.dst = expr
	}
	return nil
}

func loadAuth(cfg *Config) error {
	cfg.AnubisBaseURL = strings.TrimSpace(getEnv("ANUBIS_BASE_URL", "http://localhost:8081"))
	cfg.AnubisIntrospectURL = strings.TrimSpace(getEnv("ANUBIS_INTROSPECT_PATH", "/v1/auth/introspect"))
	cfg.AnubisAdminKey = strings.TrimSpace(getEnv("ANUBIS_ADMIN_KEY", ""))
	cfg.InternalJobToken = strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", ""))

	var err error
	if cfg.AnubisTimeout, err = parsePositiveDuration("ANUBIS_TIMEOUT", "3s"); err != nil {
		return err
	}
	circuit, err := loadCircuit("ANUBIS")
	if err != nil {
		return err
	}
	cfg.AnubisCircuitEnabled = circuit.enabled
	cfg.AnubisCircuitFailureCount = circuit.failureCount
	cfg.AnubisCircuitOpenTimeout = circuit.openTimeout
	cfg.AnubisCircuitHalfOpenMaxReq = circuit.halfOpenMaxRq
	return nil
}

func loadQueue(cfg *Config) error {
	var err error
	if cfg.QStashEnabled, err = parseBool("QSTASH_ENABLED", "false"); err != nil {
		return err
	}
	if cfg.QStashRetries, err = parseMinInt("QSTASH_RETRIES", 3, 0); err != nil {
		return err
	}
	cfg.QStashBaseURL = strings.TrimSpace(getEnv("QSTASH_BASE_URL", "https://qstash.upstash.io"))
	cfg.QStashToken = strings.TrimSpace(getEnv("QSTASH_TOKEN", ""))
	cfg.QStashTargetBaseURL = strings.TrimSpace(getEnv("QSTASH_TARGET_BASE_URL", ""))
	if cfg.QStashEnabled {
		if cfg.QStashToken == "" {
			return fmt.Errorf("QSTASH_TOKEN is required when QSTASH_ENABLED=true")
		}
		if cfg.QStashTargetBaseURL == "" {
			return fmt.Errorf("QSTASH_TARGET_BASE_URL is required when QSTASH_ENABLED=true")
		}
		if cfg.InternalJobToken == "" {
			return fmt.Errorf("INTERNAL_JOB_TOKEN is required when QSTASH_ENABLED=true")
		}
	}

	circuit, err := loadCircuit("QSTASH")
	if err != nil {
		return err
	}
	cfg.QStashCircuitEnabled = circuit.enabled
	cfg.QStashCircuitFailureCount = circuit.failureCount
	cfg.QStashCircuitOpenTimeout = circuit.openTimeout
	cfg.QStashCircuitHalfOpenMaxReq = circuit.halfOpenMaxRq
	return nil
}

func loadObservability(cfg *Config) error {
	var err error
	if cfg.UptraceEnabled, err = parseBool("UPTRACE_ENABLED", "false"); err != nil {
		return err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.UptraceLogsEnabled, err = parseBool("UPTRACE_LOGS_ENABLED", "true"); err != nil {
		return err
	}

	if cfg.BetterStackEnabled, err = parseBool("BETTERSTACK_ENABLED", "false"); err != nil {
		return err
	}
	cfg.BetterStackEndpoint = strings.TrimSpace(getEnv("BETTERSTACK_ENDPOINT", ""))
	if cfg.BetterStackEnabled && cfg.BetterStackEndpoint == "" {
		return fmt.Errorf("BETTERSTACK_ENDPOINT is required when BETTERSTACK_ENABLED=true")
	}
	cfg.BetterStackToken = strings.TrimSpace(getEnv("BETTERSTACK_TOKEN", ""))
	if cfg.BetterStackTimeout, err = parsePositiveDuration("BETTERSTACK_TIMEOUT", "3s"); err != nil {
		return err
	}
	cfg.BetterStackMinLevel = logging.ParseLevel(getEnv("BETTERSTACK_MIN_LEVEL", "error"))

	if cfg.PprofEnabled, err = parseBool("PPROF_ENABLED", "false"); err != nil {
		return err
	}
	cfg.PprofAddr = strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))

	if cfg.PyroscopeEnabled, err = parseBool("PYROSCOPE_ENABLED", "false"); err != nil {
		return err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeUploadRate, err = parsePositiveDuration("PYROSCOPE_UPLOAD_RATE", "15s"); err != nil {
		return err
	}
	return nil
}

func loadCircuit(prefix string) (circuitSettings, error) {
	var (
		out circuitSettings
		err error
	)
	if out.enabled, err = parseBool(prefix+"_CIRCUIT_ENABLED", "true"); err != nil {
		return out, err
	}
	if out.failureCount, err = parseMinInt(prefix+"_CIRCUIT_FAILURE_COUNT", 5, 1); err != nil {
		return out, err
	}
	if out.openTimeout, err = parsePositiveDuration(prefix+"_CIRCUIT_OPEN_TIMEOUT", "15s"); err != nil {
		return out, err
	}
	if out.halfOpenMaxRq, err = parseMinInt(prefix+"_CIRCUIT_HALF_OPEN_MAX_REQ", 2, 1); err != nil {
		return out, err
	}
	return out, nil
}

// parseCron validates a standard five-field expression; "off" disables the job.
func parseCron(key, fallback string) (string, error) {
	expr := strings.TrimSpace(getEnv(key, fallback))
	if strings.EqualFold(expr, "off") {
		return "", nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("parse %s: %w", key, err)
	}
	return expr, nil
}

func parseBool(key, fallback string) (bool, error) {
	out, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, fallback)))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return out, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	out, err := time.ParseDuration(strings.TrimSpace(getEnv(key, fallback)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return out, nil
}

func parseMinInt(key string, fallback, minValue int) (int, error) {
	out, err := getEnvAsInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out < minValue {
		return 0, fmt.Errorf("%s must be >= %d", key, minValue)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
