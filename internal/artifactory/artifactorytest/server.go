// Package artifactorytest provides an in-memory Artifactory for tests. It
// understands the subset of the REST API the collector uses: items.find AQL
// with $match criteria, repository probes and creation, storage probes,
// folder creation and artifact GET, PUT and DELETE.
package artifactorytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Base is the end point base the server is mounted under.
const Base = "artifactory"

// File is a stored artifact.
type File struct {
	Data    []byte
	Created time.Time
}

// Server is a fake Artifactory instance.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	repos       map[string]bool
	folders     map[string]bool
	files       map[string]File
	requests    []string
	logShipping bool

	// Now stamps the creation time of stored artifacts.
	Now func() time.Time
	// Fail, when set, forces a status for matching requests. Returning 0
	// lets the request through.
	Fail func(method, p string) int
}

// New starts a server. Call Close when done.
func New() *Server {
	s := &Server{
		repos:       make(map[string]bool),
		folders:     make(map[string]bool),
		files:       make(map[string]File),
		logShipping: true,
		Now:         time.Now,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SetLogShipping toggles the log shipping configuration.
func (s *Server) SetLogShipping(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logShipping = enabled
}

// AddRepo creates a repository.
func (s *Server) AddRepo(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[key] = true
}

// HasRepo reports whether a repository exists.
func (s *Server) HasRepo(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[key]
}

// HasFolder reports whether a folder was created at repo/path.
func (s *Server) HasFolder(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[strings.Trim(p, "/")]
}

// PutFile stores an artifact at repo/path/name with the given creation time.
func (s *Server) PutFile(p string, data []byte, created time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = File{Data: data, Created: created}
}

// File returns the artifact at p.
func (s *Server) File(p string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[p]
	return f, ok
}

// Paths lists stored artifact paths with the given prefix, sorted.
func (s *Server) Paths(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns how many requests matched method and path prefix.
func (s *Server) Count(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.HasPrefix(r, method+" "+prefix) {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/"+Base+"/")

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+p)
	fail := s.Fail
	s.mu.Unlock()

	if fail != nil {
		if status := fail(r.Method, p); status != 0 {
			http.Error(w, `{"errors":[{"message":"injected"}]}`, status)
			return
		}
	}

	switch {
	case r.Method == http.MethodPost && p == "api/search/aql":
		s.search(w, r)
	case r.Method == http.MethodGet && p == "api/logshipping/config":
		s.mu.Lock()
		enabled := s.logShipping
		s.mu.Unlock()
		writeJSON(w, map[string]bool{"enabled": enabled})
	case strings.HasPrefix(p, "api/repositories/"):
		s.repository(w, r, strings.TrimPrefix(p, "api/repositories/"))
	case r.Method == http.MethodGet && strings.HasPrefix(p, "api/storage/"):
		s.storage(w, strings.TrimPrefix(p, "api/storage/"))
	default:
		s.artifact(w, r, p)
	}
}

func (s *Server) repository(w http.ResponseWriter, r *http.Request, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		if !s.repos[key] {
			http.Error(w, `{"errors":[{"status":400,"message":"Bad Request"}]}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"key": key, "rclass": "local"})
	case http.MethodPut:
		var body struct {
			Key    string `json:"key"`
			RClass string `json:"rclass"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key != key || body.RClass == "" {
			http.Error(w, "bad repository body", http.StatusBadRequest)
			return
		}
		s.repos[key] = true
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) storage(w http.ResponseWriter, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = strings.Trim(p, "/")
	if s.folders[p] {
		writeJSON(w, map[string]any{"path": p, "children": []any{}})
		return
	}
	if _, ok := s.files[p]; ok {
		writeJSON(w, map[string]any{"path": p})
		return
	}
	http.Error(w, `{"errors":[{"status":404}]}`, http.StatusNotFound)
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, _, _ := strings.Cut(p, "/")
	switch r.Method {
	case http.MethodGet:
		f, ok := s.files[p]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Write(f.Data)
	case http.MethodPut:
		if !s.repos[repo] {
			http.Error(w, "no such repository", http.StatusNotFound)
			return
		}
		if strings.HasSuffix(p, "/") {
			s.folders[strings.Trim(p, "/")] = true
			w.WriteHeader(http.StatusCreated)
			return
		}
		data, _ := io.ReadAll(r.Body)
		s.files[p] = File{Data: data, Created: s.Now()}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.files[p]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		delete(s.files, p)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type aqlMatch struct {
	Match string `json:"$match"`
}

type aqlCriteria struct {
	Repo string    `json:"repo"`
	Path *aqlMatch `json:"path"`
	Name *aqlMatch `json:"name"`
}

type aqlItem struct {
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Created string `json:"created"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := strings.TrimSpace(string(body))
	if !strings.HasPrefix(q, "items.find(") || !strings.HasSuffix(q, ")") {
		http.Error(w, "unsupported query", http.StatusBadRequest)
		return
	}
	var crit aqlCriteria
	if err := json.Unmarshal([]byte(q[len("items.find("):len(q)-1]), &crit); err != nil {
		http.Error(w, "bad criteria", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	results := []aqlItem{}
	for p, f := range s.files {
		repo, rest, ok := strings.Cut(p, "/")
		if !ok || repo != crit.Repo {
			continue
		}
		dir, name := path.Split(rest)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" {
			dir = "."
		}
		if crit.Path != nil && !glob(crit.Path.Match, dir) {
			continue
		}
		if crit.Name != nil && !glob(crit.Name.Match, name) {
			continue
		}
		results = append(results, aqlItem{
			Repo:    repo,
			Path:    dir,
			Name:    name,
			Type:    "file",
			Size:    len(f.Data),
			Created: f.Created.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	s.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].Name < results[j].Name
	})
	writeJSON(w, map[string]any{
		"results": results,
		"range": map[string]int{
			"start_pos": 0,
			"end_pos":   len(results),
			"total":     len(results),
		},
	})
}

// glob implements AQL $match: * matches any run of characters, ? exactly one.
func glob(pattern, s string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String()).MatchString(s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
