package feed

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/version"
)

// Nuspec is the package manifest embedded in every .nupkg.
type Nuspec struct {
	XMLName  xml.Name       `xml:"package"`
	Metadata NuspecMetadata `xml:"metadata"`
}

// NuspecMetadata holds the fields psresget reads from a .nuspec.
type NuspecMetadata struct {
	ID                       string             `xml:"id"`
	Version                  string             `xml:"version"`
	Authors                  string             `xml:"authors"`
	Owners                   string             `xml:"owners"`
	Description              string             `xml:"description"`
	ReleaseNotes             string             `xml:"releaseNotes"`
	LicenseURL               string             `xml:"licenseUrl"`
	ProjectURL               string             `xml:"projectUrl"`
	IconURL                  string             `xml:"iconUrl"`
	Tags                     string             `xml:"tags"`
	RequireLicenseAcceptance bool               `xml:"requireLicenseAcceptance"`
	Dependencies             nuspecDependencies `xml:"dependencies"`
}

type nuspecDependencies struct {
	Groups []nuspecGroup      `xml:"group,omitempty"`
	Flat   []nuspecDependency `xml:"dependency,omitempty"`
}

type nuspecGroup struct {
	TargetFramework string             `xml:"targetFramework,attr"`
	Dependencies    []nuspecDependency `xml:"dependency"`
}

type nuspecDependency struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// ParseNuspec decodes a .nuspec document. Element namespaces are ignored.
func ParseNuspec(r io.Reader) (*Nuspec, error) {
	var n Nuspec
	if err := xml.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode nuspec: %w", err)
	}
	if n.Metadata.ID == "" {
		return nil, fmt.Errorf("decode nuspec: missing id")
	}
	return &n, nil
}

// Candidate converts the manifest into a Candidate.
func (n *Nuspec) Candidate() (Candidate, error) {
	m := n.Metadata
	v, err := version.Parse(m.Version)
	if err != nil {
		return Candidate{}, fmt.Errorf("%s: %w", m.ID, err)
	}

	c := Candidate{
		ID:                       m.ID,
		Version:                  v,
		Tags:                     ParseTags(m.Tags),
		Authors:                  strings.TrimSpace(m.Authors),
		Owners:                   strings.TrimSpace(m.Owners),
		Description:              strings.TrimSpace(m.Description),
		LicenseURL:               m.LicenseURL,
		ProjectURL:               m.ProjectURL,
		IconURL:                  m.IconURL,
		RequireLicenseAcceptance: m.RequireLicenseAcceptance,
	}
	if len(m.Dependencies.Flat) > 0 {
		c.DependencyGroups = append(c.DependencyGroups, DependencyGroup{Dependencies: toDependencies(m.Dependencies.Flat)})
	}
	for _, g := range m.Dependencies.Groups {
		c.DependencyGroups = append(c.DependencyGroups, DependencyGroup{
			TargetFramework: g.TargetFramework,
			Dependencies:    toDependencies(g.Dependencies),
		})
	}
	return c, nil
}

// NewNuspec builds the manifest describing c.
func NewNuspec(c Candidate) *Nuspec {
	n := &Nuspec{Metadata: NuspecMetadata{
		ID:                       c.ID,
		Version:                  c.Version.Original(),
		Authors:                  c.Authors,
		Owners:                   c.Owners,
		Description:              c.Description,
		LicenseURL:               c.LicenseURL,
		ProjectURL:               c.ProjectURL,
		IconURL:                  c.IconURL,
		Tags:                     strings.Join(c.Tags, " "),
		RequireLicenseAcceptance: c.RequireLicenseAcceptance,
	}}
	for _, g := range c.DependencyGroups {
		ng := nuspecGroup{TargetFramework: g.TargetFramework}
		for _, d := range g.Dependencies {
			ng.Dependencies = append(ng.Dependencies, nuspecDependency{ID: d.ID, Version: d.Range})
		}
		n.Metadata.Dependencies.Groups = append(n.Metadata.Dependencies.Groups, ng)
	}
	return n
}

// Marshal encodes the manifest as an XML document.
func (n *Nuspec) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func toDependencies(in []nuspecDependency) []Dependency {
	out := make([]Dependency, 0, len(in))
	for _, d := range in {
		out = append(out, Dependency{ID: d.ID, Range: d.Version})
	}
	return out
}

// ReadNupkgManifest reads only the .nuspec of the package at path.
func ReadNupkgManifest(path string) (*Nuspec, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if isRootNuspec(f.Name) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return ParseNuspec(rc)
		}
	}
	return nil, fmt.Errorf("%s: no .nuspec in package", path)
}

// ExtractNupkg unpacks the package at path into destDir and returns its
// manifest. Packaging artifacts ([Content_Types].xml, _rels/, package/ and
// the .nuspec itself) are not extracted. Entries that would land outside
// destDir are rejected.
func ExtractNupkg(path, destDir string) (*Nuspec, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", destDir, err)
	}

	var spec *Nuspec
	for _, f := range zr.File {
		name, err := url.PathUnescape(f.Name)
		if err != nil {
			name = f.Name
		}
		name = strings.ReplaceAll(name, "\\", "/")

		if isRootNuspec(name) {
			if spec, err = readNuspecEntry(f); err != nil {
				return nil, err
			}
			continue
		}
		if isPackagingArtifact(name) || strings.HasSuffix(name, "/") {
			continue
		}
		if err := perrors.ValidatePath(name); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.FromSlash(name))); err != nil {
			return nil, err
		}
	}

	if spec == nil {
		return nil, fmt.Errorf("%s: no .nuspec in package", path)
	}
	return spec, nil
}

func readNuspecEntry(f *zip.File) (*Nuspec, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseNuspec(rc)
}

func extractEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

func isRootNuspec(name string) bool {
	return !strings.Contains(name, "/") && strings.EqualFold(path.Ext(name), ".nuspec")
}

func isPackagingArtifact(name string) bool {
	lower := strings.ToLower(name)
	return lower == "[content_types].xml" ||
		strings.HasPrefix(lower, "_rels/") ||
		strings.HasPrefix(lower, "package/")
}
