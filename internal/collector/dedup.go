package collector

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/withObsrvr/saas-log-collector/internal/catalog"
)

// MatchType returns the first entry of types contained in name.
func MatchType(name string, types []string) (string, bool) {
	for _, t := range types {
		if t != "" && strings.Contains(name, t) {
			return t, true
		}
	}
	return "", false
}

// Filter turns a catalog listing into work: files already marked succeeded
// and files matching no allowed type are dropped, and repeated names collapse
// to a single item. Catalog order is preserved. A nil succeeded set is
// treated as empty.
func Filter(solution string, date time.Time, files []catalog.LogFile, succeeded mapset.Set[string], types []string) []WorkItem {
	seen := mapset.NewThreadUnsafeSet[string]()
	items := make([]WorkItem, 0, len(files))
	for _, f := range files {
		if succeeded != nil && succeeded.Contains(f.Name) {
			continue
		}
		t, ok := MatchType(f.Name, types)
		if !ok || seen.Contains(f.Name) {
			continue
		}
		seen.Add(f.Name)
		items = append(items, WorkItem{
			Solution: solution,
			Date:     date,
			File:     f,
			Type:     t,
		})
	}
	return items
}
