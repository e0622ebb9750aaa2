package nuget

import (
	"strings"
	"time"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/version"
)

// atomFeed is the subset of a NuGet v2 OData Atom response psresget reads.
// Element names are matched without namespaces.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
	Links   []atomLink  `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Properties atomProperties `xml:"properties"`
}

type atomProperties struct {
	ID                       string `xml:"Id"`
	Version                  string `xml:"Version"`
	NormalizedVersion        string `xml:"NormalizedVersion"`
	Dependencies             string `xml:"Dependencies"`
	Tags                     string `xml:"Tags"`
	Authors                  string `xml:"Authors"`
	Owners                   string `xml:"Owners"`
	Description              string `xml:"Description"`
	LicenseURL               string `xml:"LicenseUrl"`
	ProjectURL               string `xml:"ProjectUrl"`
	IconURL                  string `xml:"IconUrl"`
	Published                string `xml:"Published"`
	RequireLicenseAcceptance string `xml:"RequireLicenseAcceptance"`
	IsPrerelease             string `xml:"IsPrerelease"`
}

// next returns the continuation link, if any.
func (f *atomFeed) next() string {
	for _, l := range f.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// candidate converts an entry. ok is false for entries without a usable
// id or version.
func (e atomEntry) candidate(src feed.Source) (feed.Candidate, bool) {
	p := e.Properties
	id := p.ID
	if id == "" {
		id = strings.TrimSpace(e.Title)
	}
	raw := p.NormalizedVersion
	if raw == "" {
		raw = p.Version
	}
	v, err := version.Parse(raw)
	if id == "" || err != nil {
		return feed.Candidate{}, false
	}

	authors := p.Authors
	if authors == "" {
		authors = e.Author.Name
	}

	return feed.Candidate{
		ID:                       id,
		Version:                  v,
		DependencyGroups:         parseDependencies(p.Dependencies),
		Tags:                     feed.ParseTags(p.Tags),
		Authors:                  strings.TrimSpace(authors),
		Owners:                   strings.TrimSpace(p.Owners),
		Description:              strings.TrimSpace(p.Description),
		LicenseURL:               p.LicenseURL,
		ProjectURL:               p.ProjectURL,
		IconURL:                  p.IconURL,
		Published:                parseTime(p.Published),
		RequireLicenseAcceptance: strings.EqualFold(strings.TrimSpace(p.RequireLicenseAcceptance), "true"),
		Repository:               src,
		DownloadURL:              e.Content.Src,
	}, true
}

// parseDependencies decodes the v2 dependency string
// "id:range:framework|id:range:framework", grouping by framework in order
// of first appearance.
func parseDependencies(s string) []feed.DependencyGroup {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var groups []feed.DependencyGroup
	index := make(map[string]int)
	for _, item := range strings.Split(s, "|") {
		parts := strings.SplitN(item, ":", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		id := strings.TrimSpace(parts[0])
		tfm := strings.TrimSpace(parts[2])

		i, ok := index[tfm]
		if !ok {
			i = len(groups)
			index[tfm] = i
			groups = append(groups, feed.DependencyGroup{TargetFramework: tfm})
		}
		// "::net45" declares a framework with no dependencies.
		if id == "" {
			continue
		}
		groups[i].Dependencies = append(groups[i].Dependencies, feed.Dependency{
			ID:    id,
			Range: strings.TrimSpace(parts[1]),
		})
	}
	return groups
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
