// Package collector runs synchronization cycles: it plans each enabled
// solution's partitions against the audit ledger and downloads the remaining
// log files with bounded parallelism.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/withObsrvr/saas-log-collector/internal/artifactory"
	"github.com/withObsrvr/saas-log-collector/internal/catalog"
	"github.com/withObsrvr/saas-log-collector/internal/checkpoint"
	"github.com/withObsrvr/saas-log-collector/internal/config"
	"github.com/withObsrvr/saas-log-collector/internal/dates"
	"github.com/withObsrvr/saas-log-collector/internal/extract"
	"github.com/withObsrvr/saas-log-collector/internal/ledger"
	"github.com/withObsrvr/saas-log-collector/internal/logging"
	"github.com/withObsrvr/saas-log-collector/internal/metadata"
	"github.com/withObsrvr/saas-log-collector/internal/metrics"
	"github.com/withObsrvr/saas-log-collector/internal/purge"
	"github.com/withObsrvr/saas-log-collector/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Preflight failures. A cycle that hits one is skipped and retried on the
// next tick.
var (
	ErrLogShippingDisabled = errors.New("log shipping is not enabled")
	ErrLogRepoMissing      = errors.New("log repository not found")
	ErrAuditRepo           = errors.New("audit repository unavailable")
)

// API is the subset of the Artifactory client used for preflight checks and
// downloads.
type API interface {
	Get(ctx context.Context, p string, header http.Header) (*artifactory.Response, error)
	Exists(ctx context.Context, p string) (bool, error)
}

// Deps are the collaborators of a Collector. Archive, Meta and State are
// optional.
type Deps struct {
	API     API
	Dates   *dates.Generator
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger
	Store   storage.LogStore
	Purger  *purge.Purger
	Archive storage.Archive
	Meta    metadata.Writer
	State   checkpoint.Manager
}

// Collector orchestrates synchronization cycles.
type Collector struct {
	cfg     config.Config
	api     API
	dates   *dates.Generator
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	store   storage.LogStore
	extract *extract.Extractor
	purger  *purge.Purger
	archive storage.Archive
	meta    metadata.Writer
	state   checkpoint.Manager
	log     *slog.Logger
}

// New creates a Collector from explicit collaborators.
func New(cfg config.Config, deps Deps) (*Collector, error) {
	if deps.API == nil || deps.Dates == nil || deps.Catalog == nil ||
		deps.Ledger == nil || deps.Store == nil || deps.Purger == nil {
		return nil, errors.New("collector: missing required dependency")
	}

	c := &Collector{
		cfg:     cfg,
		api:     deps.API,
		dates:   deps.Dates,
		catalog: deps.Catalog,
		ledger:  deps.Ledger,
		store:   deps.Store,
		extract: extract.New(deps.Store),
		purger:  deps.Purger,
		archive: deps.Archive,
		meta:    deps.Meta,
		state:   deps.State,
		log:     slog.With("component", "collector"),
	}
	if c.archive == nil {
		c.archive, _ = storage.NewArchive(context.Background(), "", "")
	}
	if c.meta == nil {
		c.meta = metadata.NewWriter(metadata.CatalogConfig{})
	}
	if c.state == nil {
		c.state, _ = checkpoint.NewManager(checkpoint.Config{})
	}
	return c, nil
}

// Open wires a Collector from configuration.
func Open(ctx context.Context, cfg config.Config) (*Collector, error) {
	client, err := artifactory.New(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("create artifactory client: %w", err)
	}

	gen := dates.New(cfg.Log.URIDatePattern)

	store, err := storage.NewLocalStore(cfg.Log.TargetLogPath)
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	archive, err := storage.NewArchive(ctx, cfg.Archive.URL, cfg.Archive.Prefix)
	if err != nil {
		return nil, err
	}

	state, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.State.Enabled,
		Dir:     cfg.State.Dir,
	})
	if err != nil {
		slog.Warn("failed to create checkpoint manager", "error", err)
		state = nil
	}

	return New(cfg, Deps{
		API:     client,
		Dates:   gen,
		Catalog: catalog.New(client, cfg.Log.LogRepo, gen),
		Ledger:  ledger.New(client, cfg.Log.AuditRepo, cfg.Interval(), gen),
		Store:   store,
		Purger:  purge.New(cfg.Log.TargetLogPath, cfg.Log.RetentionDays),
		Archive: archive,
		Meta:    metadata.NewWriter(metadata.CatalogConfig(cfg.Catalog)),
		State:   state,
	})
}

// Close releases the archive bucket and catalog connections.
func (c *Collector) Close() error {
	var errs *multierror.Error
	if err := c.archive.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close archive: %w", err))
	}
	if err := c.meta.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close catalog: %w", err))
	}
	return errs.ErrorOrNil()
}

// RunCycle performs one full cycle: purge, preflight, then plan and download
// every enabled solution. It never fails; the outcome is reported in the
// returned checkpoint, which is also persisted.
func (c *Collector) RunCycle(ctx context.Context) *checkpoint.Checkpoint {
	id := logging.NewCycleID()
	ctx = logging.WithCycleID(ctx, id)
	log := c.log.With("cycle_id", id)

	cp := &checkpoint.Checkpoint{
		CycleID:   id,
		StartedAt: time.Now().UTC(),
		Solutions: make(map[string]checkpoint.SolutionStats),
	}
	log.Info("cycle started", "version", Version, "solutions", c.cfg.Log.SolutionsEnabled)

	res, err := c.purger.Run(ctx)
	if err != nil {
		log.Warn("purge finished with errors", "error", err)
	}
	cp.Purged = len(res.Purged)
	if m := metrics.Get(); m != nil && cp.Purged > 0 {
		m.AddFilesPurged(cp.Purged)
	}

	if err := c.preflight(ctx); err != nil {
		log.Warn("preflight failed, skipping cycle", "error", err)
		cp.Outcome = checkpoint.OutcomeSkipped
		cp.Reason = err.Error()
		return c.finish(ctx, log, cp)
	}

	start, end := c.dates.Window(c.cfg.Process.HistoricalLogDays)
	days := c.dates.Between(start, end)
	cp.Window = checkpoint.Window{Start: start, End: end}
	log.Info("processing window", "start", start, "end", end, "dates", len(days))

	var mu sync.Mutex
	err = forEach(ctx, c.cfg.Log.SolutionsEnabled, c.cfg.Process.ParallelProcess, func(ctx context.Context, solution string) {
		st := c.syncSolution(ctx, solution, days)
		mu.Lock()
		cp.Solutions[solution] = st
		mu.Unlock()
	})

	cp.Outcome = checkpoint.OutcomeCompleted
	if err != nil {
		cp.Outcome = checkpoint.OutcomeCancelled
		cp.Reason = err.Error()
	}
	return c.finish(ctx, log, cp)
}

func (c *Collector) finish(ctx context.Context, log *slog.Logger, cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	cp.FinishedAt = time.Now().UTC()
	// The cycle context may be cancelled; the checkpoint is still written.
	if err := c.state.Save(context.WithoutCancel(ctx), cp); err != nil {
		log.Warn("failed to save checkpoint", "error", err)
	}
	if m := metrics.Get(); m != nil {
		m.ObserveCycle(cp.Outcome, cp.Duration().Seconds())
	}

	var downloaded, failed int
	for _, st := range cp.Solutions {
		downloaded += st.Downloaded
		failed += st.Failed
	}
	log.Info("cycle finished",
		"outcome", cp.Outcome,
		"downloaded", downloaded,
		"failed", failed,
		"purged", cp.Purged,
		"duration", cp.Duration().Round(time.Millisecond),
	)
	return cp
}

// preflight verifies that logs can be collected at all: log shipping is on,
// the log repository exists and the audit repository exists or was created.
func (c *Collector) preflight(ctx context.Context) error {
	resp, err := c.api.Get(ctx, c.cfg.Log.LogShipConfig, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogShippingDisabled, err)
	}
	var ship struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(resp.Body, &ship); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrLogShippingDisabled, c.cfg.Log.LogShipConfig, err)
	}
	if !ship.Enabled {
		return fmt.Errorf("%w on %s", ErrLogShippingDisabled, c.cfg.Connection.JPDURL)
	}

	found, err := c.api.Exists(ctx, "api/repositories/"+c.cfg.Log.LogRepo)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLogRepoMissing, c.cfg.Log.LogRepo, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrLogRepoMissing, c.cfg.Log.LogRepo)
	}

	if err := c.ledger.EnsureRepo(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditRepo, err)
	}
	return nil
}

// syncSolution plans every date of the window for one solution and then
// downloads the planned items with at most parallel_downloads in flight.
func (c *Collector) syncSolution(ctx context.Context, solution string, days []time.Time) checkpoint.SolutionStats {
	log := logging.SolutionLogger(ctx, solution)
	var st checkpoint.SolutionStats

	var items []WorkItem
	for _, d := range days {
		if ctx.Err() != nil {
			break
		}
		items = append(items, c.plan(ctx, solution, d, &st)...)
	}
	st.Queued = len(items)
	if len(items) == 0 {
		log.Info("nothing to collect", "listed", st.Listed)
		return st
	}

	var mu sync.Mutex
	_ = forEach(ctx, items, c.cfg.Process.ParallelDownloads, func(ctx context.Context, it WorkItem) {
		r := c.process(ctx, it)
		mu.Lock()
		defer mu.Unlock()
		switch r.Outcome {
		case outcomeDownloaded:
			st.Downloaded++
			st.Bytes += r.Extracted
		case outcomeSkipped:
			st.Skipped++
		case outcomeFailed:
			st.Failed++
		}
	})

	log.Info("solution synchronized",
		"queued", st.Queued,
		"downloaded", st.Downloaded,
		"skipped", st.Skipped,
		"failed", st.Failed,
		"reclaimed", st.Reclaimed,
	)
	return st
}
