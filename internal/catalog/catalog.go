// Package catalog lists the shipped log files of one (solution, date)
// partition in the log repository.
package catalog

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/withObsrvr/saas-log-collector/internal/artifactory"
)

// NamePattern selects shipped, compressed log files.
const NamePattern = "*log.gz"

// LogFile describes one remote log file.
type LogFile struct {
	Name    string
	Repo    string
	Path    string
	Size    int64
	Created time.Time
}

// DownloadPath is the repository-relative path used to fetch the file.
func (f LogFile) DownloadPath() string {
	return path.Join(f.Repo, f.Path, f.Name)
}

// Searcher runs AQL queries.
type Searcher interface {
	Search(ctx context.Context, q artifactory.Query) ([]artifactory.Item, error)
}

// DateFormatter renders partition dates into repository paths.
type DateFormatter interface {
	Format(t time.Time) string
}

// Catalog queries the log repository.
type Catalog struct {
	search Searcher
	repo   string
	dates  DateFormatter
	log    *slog.Logger
}

// New returns a Catalog over repo.
func New(search Searcher, repo string, dates DateFormatter) *Catalog {
	return &Catalog{
		search: search,
		repo:   repo,
		dates:  dates,
		log:    slog.With("component", "catalog"),
	}
}

// Query builds the listing query for a partition.
func (c *Catalog) Query(solution string, date time.Time) artifactory.Query {
	return artifactory.Query{
		Repo: c.repo,
		Path: solution + "/" + c.dates.Format(date),
		Name: NamePattern,
	}
}

// List returns the log files of a partition. Any failure yields an empty
// list; the partition is retried on the next cycle.
func (c *Catalog) List(ctx context.Context, solution string, date time.Time) []LogFile {
	q := c.Query(solution, date)
	items, err := c.search.Search(ctx, q)
	if err != nil {
		c.log.Warn("log listing failed",
			"solution", solution,
			"path", q.Path,
			"error", err,
		)
		return []LogFile{}
	}

	files := make([]LogFile, 0, len(items))
	for _, it := range items {
		files = append(files, LogFile{
			Name:    it.Name,
			Repo:    it.Repo,
			Path:    it.Path,
			Size:    it.Size,
			Created: it.Created,
		})
	}
	c.log.Debug("listed log files", "solution", solution, "path", q.Path, "count", len(files))
	return files
}
