package artifactory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
)

const aqlPath = "api/search/aql"

// Query is an items.find AQL query. Path and Name are $match patterns; an
// empty field is omitted from the criteria.
type Query struct {
	Repo string
	Path string
	Name string
}

type match struct {
	Match string `json:"$match"`
}

type criteria struct {
	Repo string `json:"repo"`
	Path *match `json:"path,omitempty"`
	Name *match `json:"name,omitempty"`
}

// String renders the query. Values are JSON-encoded, so quotes and
// backslashes in names cannot alter the criteria.
func (q Query) String() string {
	crit := criteria{Repo: q.Repo}
	if q.Path != "" {
		crit.Path = &match{Match: q.Path}
	}
	if q.Name != "" {
		crit.Name = &match{Match: q.Name}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// criteria holds only strings; encoding cannot fail.
	_ = enc.Encode(crit)
	return "items.find(" + strings.TrimSpace(buf.String()) + ")"
}

// Item is one entry of an AQL result.
type Item struct {
	Repo    string    `json:"repo"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// FullPath is the repository-relative download path of the item.
func (i Item) FullPath() string {
	return path.Join(i.Repo, i.Path, i.Name)
}

type searchResult struct {
	Results []Item `json:"results"`
	Range   struct {
		Total int `json:"total"`
	} `json:"range"`
}

// Search posts q to the AQL endpoint. A non-2xx status, a non-JSON content
// type or an undecodable body is reported as an error; zero matches is an
// empty slice.
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	req := Request{
		Method: http.MethodPost,
		Path:   aqlPath,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(q.String()),
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, StatusError(req, resp)
	}
	if !resp.IsJSON() {
		return nil, fmt.Errorf("aql search: unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	var res searchResult
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return nil, fmt.Errorf("decode aql response: %w", err)
	}
	if res.Range.Total == 0 && len(res.Results) == 0 {
		return []Item{}, nil
	}
	return res.Results, nil
}
