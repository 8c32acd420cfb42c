// Package ledger keeps per-file processing state as marker objects in the
// remote audit repository and coordinates workers through lock markers.
//
// A file moves from absent to locked (a "<file>.lock" object) to succeeded
// (a "<file>.status.json" object). Locks older than one run interval are
// considered abandoned and are deleted by ReclaimStaleLocks. Lock acquisition
// is check-then-act: two workers racing on the same file may both proceed,
// which gives at-least-once processing.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/withObsrvr/saas-log-collector/internal/artifactory"
)

const (
	StatusLock    = "LOCK"
	StatusSuccess = "SUCCESS"

	LockSuffix    = ".lock"
	SuccessSuffix = ".status.json"

	repoDescription = "This repository is for auditing the jfrog-saas-log-collector downloads and extracts"
)

// ErrNotFound is returned when a marker to be removed no longer exists.
var ErrNotFound = errors.New("marker not found")

// API is the subset of the Artifactory client the ledger needs.
type API interface {
	Search(ctx context.Context, q artifactory.Query) ([]artifactory.Item, error)
	Exists(ctx context.Context, p string) (bool, error)
	Put(ctx context.Context, p, contentType string, body []byte) (*artifactory.Response, error)
	Delete(ctx context.Context, p string) (*artifactory.Response, error)
}

// DateFormatter renders partition dates into repository paths.
type DateFormatter interface {
	Format(t time.Time) string
}

// Marker is the JSON body of a lock or success marker.
type Marker struct {
	FileName  string    `json:"file_name"`
	Status    string    `json:"status"`
	EventTime time.Time `json:"event_time"`
	CreatedBy string    `json:"created_by"`
}

// Ledger reads and writes markers in one audit repository.
type Ledger struct {
	api        API
	repo       string
	staleAfter time.Duration
	dates      DateFormatter
	known      *ttlcache.Cache[string, struct{}]
	now        func() time.Time
	log        *slog.Logger
}

// New returns a Ledger over the audit repository repo. Locks at least
// staleAfter old are reclaimable; known partition folders are remembered for
// the same duration.
func New(api API, repo string, staleAfter time.Duration, dates DateFormatter) *Ledger {
	return &Ledger{
		api:        api,
		repo:       repo,
		staleAfter: staleAfter,
		dates:      dates,
		known: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](staleAfter),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		now: time.Now,
		log: slog.With("component", "ledger"),
	}
}

// WithClock replaces the clock used for marker times and staleness.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Repo returns the audit repository key.
func (l *Ledger) Repo() string {
	return l.repo
}

func (l *Ledger) partition(solution string, date time.Time) string {
	return solution + "/" + l.dates.Format(date)
}

// LockPath is the repository path of a file's lock marker.
func (l *Ledger) LockPath(solution string, date time.Time, file string) string {
	return l.repo + "/" + l.partition(solution, date) + "/" + file + LockSuffix
}

// SuccessPath is the repository path of a file's success marker.
func (l *Ledger) SuccessPath(solution string, date time.Time, file string) string {
	return l.repo + "/" + l.partition(solution, date) + "/" + file + SuccessSuffix
}

// EnsureRepo creates the audit repository when it does not exist.
func (l *Ledger) EnsureRepo(ctx context.Context) error {
	p := "api/repositories/" + l.repo
	exists, err := l.api.Exists(ctx, p)
	if err != nil {
		return fmt.Errorf("probe audit repository %s: %w", l.repo, err)
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"key":           l.repo,
		"environments":  []string{"PROD"},
		"rclass":        "local",
		"packageType":   "generic",
		"repoLayoutRef": "simple-default",
		"description":   repoDescription,
	})
	if err != nil {
		return fmt.Errorf("marshal repository body: %w", err)
	}
	if _, err := l.api.Put(ctx, p, "application/json", body); err != nil {
		return fmt.Errorf("create audit repository %s: %w", l.repo, err)
	}
	l.log.Info("created audit repository", "repo", l.repo)
	return nil
}

// EnsurePartition creates the solution/date folder in the audit repository
// when it does not exist.
func (l *Ledger) EnsurePartition(ctx context.Context, solution string, date time.Time) error {
	dir := l.partition(solution, date)
	if l.known.Get(dir) != nil {
		return nil
	}

	exists, err := l.api.Exists(ctx, "api/storage/"+l.repo+"/"+dir)
	if err != nil {
		return fmt.Errorf("probe audit folder %s: %w", dir, err)
	}
	if !exists {
		// The trailing slash makes Artifactory create a folder, not a file.
		if _, err := l.api.Put(ctx, l.repo+"/"+dir+"/", "", nil); err != nil {
			return fmt.Errorf("create audit folder %s: %w", dir, err)
		}
		l.log.Info("created audit folder", "repo", l.repo, "path", dir)
	}
	l.known.Set(dir, struct{}{}, ttlcache.DefaultTTL)
	return nil
}

// IsLocked reports whether a lock marker for file exists under any date of
// the solution.
func (l *Ledger) IsLocked(ctx context.Context, solution, file string) (bool, error) {
	items, err := l.api.Search(ctx, artifactory.Query{
		Repo: l.repo,
		Path: solution + "/*",
		Name: file + LockSuffix,
	})
	if err != nil {
		return false, fmt.Errorf("probe lock for %s: %w", file, err)
	}
	return len(items) > 0, nil
}

// IsSucceeded reports whether the success marker for file exists in its
// partition.
func (l *Ledger) IsSucceeded(ctx context.Context, solution string, date time.Time, file string) (bool, error) {
	ok, err := l.api.Exists(ctx, "api/storage/"+l.SuccessPath(solution, date, file))
	if err != nil {
		return false, fmt.Errorf("probe success marker for %s: %w", file, err)
	}
	return ok, nil
}

// AcquireLock writes the lock marker for file.
func (l *Ledger) AcquireLock(ctx context.Context, solution string, date time.Time, file string) error {
	return l.putMarker(ctx, l.LockPath(solution, date, file), file, StatusLock)
}

// MarkSucceeded writes the success marker for file.
func (l *Ledger) MarkSucceeded(ctx context.Context, solution string, date time.Time, file string) error {
	return l.putMarker(ctx, l.SuccessPath(solution, date, file), file, StatusSuccess)
}

// ReleaseLock deletes the lock marker for file. ErrNotFound is returned when
// the marker was already gone, e.g. reclaimed by another run.
func (l *Ledger) ReleaseLock(ctx context.Context, solution string, date time.Time, file string) error {
	return l.deleteMarker(ctx, l.LockPath(solution, date, file))
}

func (l *Ledger) putMarker(ctx context.Context, p, file, status string) error {
	body, err := json.Marshal(Marker{
		FileName:  file,
		Status:    status,
		EventTime: l.now().UTC(),
		CreatedBy: artifactory.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if _, err := l.api.Put(ctx, p, "application/json", body); err != nil {
		return fmt.Errorf("write %s marker %s: %w", strings.ToLower(status), p, err)
	}
	return nil
}

func (l *Ledger) deleteMarker(ctx context.Context, p string) error {
	resp, err := l.api.Delete(ctx, p)
	if err != nil {
		if resp != nil && resp.Status == http.StatusNotFound {
			return fmt.Errorf("delete marker %s: %w", p, ErrNotFound)
		}
		return fmt.Errorf("delete marker %s: %w", p, err)
	}
	return nil
}

// Succeeded returns the names of files in the partition that carry a
// success marker.
func (l *Ledger) Succeeded(ctx context.Context, solution string, date time.Time) (mapset.Set[string], error) {
	items, err := l.api.Search(ctx, artifactory.Query{
		Repo: l.repo,
		Path: l.partition(solution, date),
		Name: "*log.gz" + SuccessSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("list success markers: %w", err)
	}
	done := mapset.NewThreadUnsafeSet[string]()
	for _, it := range items {
		done.Add(strings.TrimSuffix(it.Name, SuccessSuffix))
	}
	return done, nil
}

// Locks lists the lock markers present in the partition.
func (l *Ledger) Locks(ctx context.Context, solution string, date time.Time) ([]artifactory.Item, error) {
	items, err := l.api.Search(ctx, artifactory.Query{
		Repo: l.repo,
		Path: l.partition(solution, date),
		Name: "*log.gz" + LockSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("list lock markers: %w", err)
	}
	return items, nil
}
