package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

var errUsage = errors.New("usage")

// command is one parsed invocation of the migration tool.
type command struct {
	name    string
	steps   int
	version int
	target  uint
}

func main() {
	_ = godotenv.Load()

	logger := logging.NewJSON(logging.ParseLevel(os.Getenv("LOG_LEVEL"))).Named("migration")
	defer func() { _ = logger.Sync() }()

	cmd, err := parseCommand(os.Args[1:])
	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	if err := run(cmd, logger); err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}

	cmd := command{name: strings.ToLower(strings.TrimSpace(args[0]))}
	rest := args[1:]

	var err error
	switch cmd.name {
	case "up", "version":
	case "down":
		cmd.steps, err = parseSteps(rest)
	case "force":
		if len(rest) == 0 {
			return command{}, fmt.Errorf("force requires a version argument")
		}
		cmd.version, err = parseVersion(rest[0])
	case "goto", "migrate":
		if len(rest) == 0 {
			return command{}, fmt.Errorf("goto requires a target version argument")
		}
		cmd.name = "goto"
		cmd.target, err = parseTarget(rest[0])
	default:
		return command{}, errUsage
	}
	if err != nil {
		return command{}, err
	}
	return cmd, nil
}

func run(cmd command, logger *logging.Logger) error {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return errors.New("DB_URL is required")
	}
	dbURL = normalizeDBURL(dbURL, envBool("DB_DISABLE_PREPARED_BINARY_RESULT"))

	migrationsDir, err := resolveMigrationsDir()
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}

	sourceURL := "file://" + filepath.ToSlash(migrationsDir)
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m, logger)

	switch cmd.name {
	case "up":
		if err := ignoreNoChange(m.Up(), logger); err != nil {
			return err
		}
		logger.Info("migrations applied", "source", sourceURL)
	case "down":
		if err := ignoreNoChange(m.Steps(-cmd.steps), logger); err != nil {
			return err
		}
		logger.Info("migrations rolled back", "steps", cmd.steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			fmt.Println("dirty: false")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Printf("version: %d\n", version)
		fmt.Printf("dirty: %t\n", dirty)
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version %d: %w", cmd.version, err)
		}
		logger.Info("migration version forced", "version", cmd.version)
	case "goto":
		if err := ignoreNoChange(m.Migrate(cmd.target), logger); err != nil {
			return err
		}
		logger.Info("migrated", "version", cmd.target)
	}
	return nil
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid down steps %q: %w", args[0], err)
	}
	if steps <= 0 {
		return 0, fmt.Errorf("down steps must be > 0")
	}
	return steps, nil
}

func parseVersion(raw string) (int, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	// -1 is migrate's "no version", used to clear a failed first migration.
	if value < -1 {
		return 0, fmt.Errorf("version must be >= -1")
	}
	if value > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("version is too large for this platform")
	}
	return int(value), nil
}

func parseTarget(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid target version %q: %w", raw, err)
	}
	return uint(value), nil
}

func ignoreNoChange(err error, logger *logging.Logger) error {
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migration changes")
		return nil
	}
	return err
}

func closeMigrator(m *migrate.Migrate, logger *logging.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("close migration db", "error", dbErr)
	}
}

func resolveMigrationsDir() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
		"./db/migrations",
		"/app/db/migrations",
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs, nil
		}
	}
	return "", fmt.Errorf("migration directory not found (checked MIGRATIONS_DIR, ./db/migrations, /app/db/migrations)")
}

func normalizeDBURL(raw string, disablePreparedBinary bool) string {
	if !disablePreparedBinary {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Get("disable_prepared_binary_result") == "" {
		query.Set("disable_prepared_binary_result", "yes")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func envBool(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func printUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "usage: %s <up|down [n]|version|force <v>|goto <v>>\n", name)
	fmt.Fprintln(os.Stderr, "environment: DB_URL (required), MIGRATIONS_DIR, DB_DISABLE_PREPARED_BINARY_RESULT")
	fmt.Fprintf(os.Stderr, "  %s up\n", name)
	fmt.Fprintf(os.Stderr, "  %s down 1\n", name)
	fmt.Fprintf(os.Stderr, "  %s force 1792281600\n", name)
}
