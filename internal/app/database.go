package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/potatocaustic/real-karma-league/internal/config"
)

const (
	maxTracedQueryLength = 512
	dbPingTimeout        = 5 * time.Second
)

func openDatabase(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is required for the postgres store")
	}

	dbName := dbNameFromURL(cfg.DBURL)
	db, err := otelsqlx.Open("postgres",
		normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbName),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %q: %w", dbName, err)
	}

	otelsql.ReportDBStatsMetrics(db.DB, otelsql.WithDBName(dbName))
	return db, nil
}

// normalizeDBURL asks lib/pq for text results when a transaction pooler sits
// in front of postgres. An explicit setting in the URL is kept.
func normalizeDBURL(raw string, disablePreparedBinary bool) string {
	if !disablePreparedBinary {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("disable_prepared_binary_result") {
		return raw
	}
	q.Set("disable_prepared_binary_result", "yes")
	u.RawQuery = q.Encode()
	return u.String()
}

// dbNameFromURL reads the database name from either a postgres:// URL or a
// key=value DSN.
func dbNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		if name := strings.Trim(u.Path, "/ "); name != "" {
			return name
		}
	}
	for _, field := range strings.Fields(raw) {
		if value, ok := strings.CutPrefix(field, "dbname="); ok {
			if name := strings.Trim(value, `"'`); name != "" {
				return name
			}
		}
	}
	return ""
}

// formatDBQueryForTrace collapses whitespace and truncates long statements
// before they are attached to spans.
func formatDBQueryForTrace(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) <= maxTracedQueryLength {
		return query
	}
	return query[:maxTracedQueryLength] + "..."
}
