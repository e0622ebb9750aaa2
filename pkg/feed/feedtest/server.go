package feedtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/version"
)

// Server is a fake NuGet v2 feed backed by a [Memory] feed.
type Server struct {
	*httptest.Server

	// PageSize splits FindPackagesById results into pages linked by
	// rel="next". Zero disables paging.
	PageSize int

	// APIKey, when set, is required in the X-NuGet-ApiKey header.
	APIKey string

	mem *Memory

	mu       sync.Mutex
	requests []string
}

// NewServer starts a fake feed serving mem's packages. The server is
// closed when the test ends.
func NewServer(t testing.TB, mem *Memory) *Server {
	s := &Server{mem: mem}

	r := chi.NewRouter()
	r.Use(s.record, s.auth)
	r.Get("/api/v2/FindPackagesById()", s.findByID)
	r.Get("/api/v2/Search()", s.search)
	r.Get("/api/v2/package/{id}/{version}", s.download)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// FeedURL returns the v2 endpoint to register as a repository URL.
func (s *Server) FeedURL() string {
	return s.URL + "/api/v2"
}

// Requests returns the request URIs received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.RequestURI())
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.Header.Get("X-NuGet-ApiKey") != s.APIKey {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) findByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(r.URL.Query().Get("id"), "'")
	pkgs := s.mem.Packages(id)
	if len(pkgs) == 0 {
		s.writeFeed(w, nil, "")
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
	next := ""
	if s.PageSize > 0 {
		skip = min(skip, len(pkgs))
		end := min(skip+s.PageSize, len(pkgs))
		if end < len(pkgs) {
			q := r.URL.Query()
			q.Set("$skip", strconv.Itoa(end))
			next = s.FeedURL() + "/FindPackagesById()?" + q.Encode()
		}
		pkgs = pkgs[skip:end]
	}
	s.writeFeed(w, pkgs, next)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	term := strings.ToLower(strings.TrimSpace(strings.Trim(r.URL.Query().Get("searchTerm"), "'")))
	pre := r.URL.Query().Get("includePrerelease") == "true"

	s.mem.mu.Lock()
	ids := make([]string, 0, len(s.mem.packages))
	for id := range s.mem.packages {
		if strings.Contains(id, term) {
			ids = append(ids, id)
		}
	}
	s.mem.mu.Unlock()
	sort.Strings(ids)

	var latest []Package
	for _, id := range ids {
		pkgs := s.mem.Packages(id)
		i := version.Select(pkgs, func(p Package) version.Version { return p.Candidate.Version }, version.Any(), pre)
		if i >= 0 {
			latest = append(latest, pkgs[i])
		}
	}
	s.writeFeed(w, latest, "")
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := version.Parse(chi.URLParam(r, "version"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	for _, p := range s.mem.Packages(id) {
		if !p.Candidate.Version.Equal(v) {
			continue
		}
		data, err := BuildNupkg(p.Candidate, p.Files)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(data)
		return
	}
	http.NotFound(w, r)
}

type atomEntry struct {
	Candidate    feed.Candidate
	Content      string
	Dependencies string
}

func (s *Server) writeFeed(w http.ResponseWriter, pkgs []Package, next string) {
	entries := make([]atomEntry, 0, len(pkgs))
	for _, p := range pkgs {
		c := p.Candidate
		entries = append(entries, atomEntry{
			Candidate:    c,
			Content:      fmt.Sprintf("%s/package/%s/%s", s.FeedURL(), url.PathEscape(c.ID), url.PathEscape(c.Version.String())),
			Dependencies: encodeDependencies(c.DependencyGroups),
		})
	}

	w.Header().Set("Content-Type", "application/atom+xml;charset=utf-8")
	if err := atomTemplate.Execute(w, map[string]any{
		"Base":    s.FeedURL(),
		"Entries": entries,
		"Next":    next,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func encodeDependencies(groups []feed.DependencyGroup) string {
	var parts []string
	for _, g := range groups {
		for _, d := range g.Dependencies {
			parts = append(parts, d.ID+":"+d.Range+":"+g.TargetFramework)
		}
	}
	return strings.Join(parts, "|")
}

var atomTemplate = template.Must(template.New("atom").Funcs(template.FuncMap{
	"xml":  xmlEscape,
	"join": strings.Join,
	"time": func(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05.999Z") },
}).Parse(`<?xml version="1.0" encoding="utf-8"?>
<feed xml:base="{{.Base}}" xmlns="http://www.w3.org/2005/Atom" xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices" xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata">
  <title type="text">Packages</title>
{{- range .Entries}}
  <entry>
    <title type="text">{{xml .Candidate.ID}}</title>
    <author><name>{{xml .Candidate.Authors}}</name></author>
    <content type="application/zip" src="{{xml .Content}}" />
    <m:properties>
      <d:Id>{{xml .Candidate.ID}}</d:Id>
      <d:Version>{{xml .Candidate.Version.Original}}</d:Version>
      <d:NormalizedVersion>{{xml .Candidate.Version.String}}</d:NormalizedVersion>
      <d:Dependencies>{{xml .Dependencies}}</d:Dependencies>
      <d:Tags>{{xml (join .Candidate.Tags " ")}}</d:Tags>
      <d:Owners>{{xml .Candidate.Owners}}</d:Owners>
      <d:Description>{{xml .Candidate.Description}}</d:Description>
      <d:LicenseUrl>{{xml .Candidate.LicenseURL}}</d:LicenseUrl>
      <d:ProjectUrl>{{xml .Candidate.ProjectURL}}</d:ProjectUrl>
      <d:IconUrl>{{xml .Candidate.IconURL}}</d:IconUrl>
      <d:Published m:type="Edm.DateTime">{{time .Candidate.Published}}</d:Published>
      <d:RequireLicenseAcceptance m:type="Edm.Boolean">{{.Candidate.RequireLicenseAcceptance}}</d:RequireLicenseAcceptance>
      <d:IsPrerelease m:type="Edm.Boolean">{{.Candidate.Version.IsPrerelease}}</d:IsPrerelease>
    </m:properties>
  </entry>
{{- end}}
{{- if .Next}}
  <link rel="next" href="{{xml .Next}}" />
{{- end}}
</feed>
`))

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
