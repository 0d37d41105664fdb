package usage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"geosvc/pkg/cache"
)

// Config mirrors config.UsageConfig.
type Config struct {
	Enabled         bool
	PersistOnlyOK   bool
	RequireIdentity bool
	AnalyticsDedupe bool
	DedupeTTL       time.Duration
}

// Tracker is the Usage Tracker's persistence/extraction orchestration,
// independent of any HTTP framework so internal/httpapi's middleware can
// stay a thin adapter.
type Tracker struct {
	cfg   Config
	repo  Repository
	dedup cache.Cache // optional, nil disables de-duplication
	log   *slog.Logger
}

// New constructs a Tracker. dedup may be nil; a nil repo is invalid and
// will panic on first use, since a tracker with nowhere to persist is a
// wiring bug, not a runtime condition to handle gracefully.
func New(cfg Config, repo Repository, dedup cache.Cache, log *slog.Logger) *Tracker {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{cfg: cfg, repo: repo, dedup: dedup, log: log}
}

// Record persists usage and, where eligible, analytics for one
// completed request. Errors are logged and swallowed: persistence
// failures here must never fail the underlying response, and Extract
// never errors — a malformed body simply yields a sparser
// AnalyticsRecord.
func (t *Tracker) Record(ctx context.Context, rec UsageRecord, kind APIKind, identity string, requestBody, responseBody map[string]any) {
	if !t.cfg.Enabled {
		return
	}

	usageID, err := t.repo.SaveUsage(ctx, rec)
	if err != nil {
		t.log.Error("usage tracker: failed to persist usage record",
			slog.String("endpoint", rec.Endpoint), slog.String("error", err.Error()))
		return
	}

	if !t.shouldPersistAnalytics(rec, identity) {
		return
	}

	if t.dedup != nil && t.cfg.AnalyticsDedupe {
		key := dedupeKey(identity, rec.Endpoint, requestBody)
		if seen, _ := t.dedup.Exists(ctx, key); seen {
			return
		}
		_ = t.dedup.Set(ctx, key, []byte{1}, t.cfg.DedupeTTL)
	}

	analytics := Extract(kind, requestBody, responseBody)
	analytics.UsageID = usageID
	analytics.User = identity
	analytics.API = string(kind)
	analytics.Timestamp = rec.Timestamp

	if err := t.repo.SaveAnalytics(ctx, *analytics); err != nil {
		t.log.Error("usage tracker: failed to persist analytics record",
			slog.String("endpoint", rec.Endpoint), slog.String("error", err.Error()))
	}
}

// shouldPersistAnalytics gates the analytics write: a record is only
// persisted when the status code is below 400 and an authenticated
// identity is present.
func (t *Tracker) shouldPersistAnalytics(rec UsageRecord, identity string) bool {
	if t.cfg.PersistOnlyOK && rec.StatusCode >= 400 {
		return false
	}
	if t.cfg.RequireIdentity && identity == "" {
		return false
	}
	return true
}

func dedupeKey(identity, endpoint string, requestBody map[string]any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", identity, endpoint, marshalQuiet(requestBody))
	return "usage:dedupe:" + hex.EncodeToString(h.Sum(nil))
}
