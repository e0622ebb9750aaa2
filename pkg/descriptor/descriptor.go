package descriptor

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/psresget/pkg/feed"
)

// ModuleFileName is the descriptor written into every installed module
// version directory.
const ModuleFileName = "PSGetModuleInfo.xml"

// ScriptInfoDir is the directory next to installed scripts that holds their
// descriptors.
const ScriptInfoDir = "InstalledScriptInfos"

// Descriptor records where an installed package came from and what it
// declares. Only the fields the install core relies on are modelled.
type Descriptor struct {
	XMLName xml.Name `xml:"PSGetItemInfo"`

	Name        string    `xml:"Name"`
	Version     string    `xml:"Version"`
	Type        Kind      `xml:"Type"`
	Description string    `xml:"Description,omitempty"`
	Author      string    `xml:"Author,omitempty"`
	CompanyName string    `xml:"CompanyName,omitempty"`
	Published   time.Time `xml:"PublishedDate"`
	Installed   time.Time `xml:"InstalledDate"`

	LicenseURI string `xml:"LicenseUri,omitempty"`
	ProjectURI string `xml:"ProjectUri,omitempty"`
	IconURI    string `xml:"IconUri,omitempty"`

	Tags     []string `xml:"Tags>Tag,omitempty"`
	Includes Includes `xml:"Includes"`

	Dependencies []Dependency `xml:"Dependencies>Dependency,omitempty"`

	Repository               string `xml:"Repository,omitempty"`
	RepositorySourceLocation string `xml:"RepositorySourceLocation,omitempty"`
	InstalledLocation        string `xml:"InstalledLocation,omitempty"`
}

// Dependency is one first-level dependency with the version the plan
// resolved it to. Version is empty when the dependency was already satisfied
// locally and nothing was resolved for it.
type Dependency struct {
	Name    string `xml:"Name,attr"`
	Range   string `xml:"Range,attr,omitempty"`
	Version string `xml:"Version,attr,omitempty"`
}

// FromCandidate builds the descriptor for c. resolved maps lower-cased
// dependency ids to the versions chosen for them.
func FromCandidate(c feed.Candidate, resolved map[string]string, installedAt time.Time) Descriptor {
	kind, inc := ParseTags(c.Tags)
	d := Descriptor{
		Name:        c.ID,
		Version:     c.Version.String(),
		Type:        kind,
		Description: c.Description,
		Author:      c.Authors,
		CompanyName: c.Owners,
		Published:   c.Published.UTC(),
		Installed:   installedAt.UTC(),
		LicenseURI:  c.LicenseURL,
		ProjectURI:  c.ProjectURL,
		IconURI:     c.IconURL,
		Tags:        c.Tags,
		Includes:    inc,

		Repository:               c.Repository.Name,
		RepositorySourceLocation: c.Repository.URL,
	}
	for _, dep := range c.Dependencies() {
		d.Dependencies = append(d.Dependencies, Dependency{
			Name:    dep.ID,
			Range:   dep.Range,
			Version: resolved[strings.ToLower(dep.ID)],
		})
	}
	sort.SliceStable(d.Dependencies, func(i, j int) bool {
		return strings.ToLower(d.Dependencies[i].Name) < strings.ToLower(d.Dependencies[j].Name)
	})
	return d
}

// FileName returns the descriptor file name for a package of the given kind.
func FileName(kind Kind, id string) string {
	if kind == Script {
		return id + "_InstalledScriptInfo.xml"
	}
	return ModuleFileName
}

// FileName returns the descriptor file name for d.
func (d Descriptor) FileName() string {
	return FileName(d.Type, d.Name)
}

// Commands returns the command surface recorded in d.
func (d Descriptor) Commands() []string {
	return d.Includes.Commands()
}

// Marshal encodes d as indented XML with a declaration header.
func (d Descriptor) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Write stores d as dir/d.FileName(). The file is written to a temporary name
// first and renamed into place.
func Write(dir string, d Descriptor) (string, error) {
	data, err := d.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create descriptor dir: %w", err)
	}
	path := filepath.Join(dir, d.FileName())
	tmp, err := os.CreateTemp(dir, ".descriptor-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// Read loads a descriptor file.
func Read(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := xml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return d, nil
}
