// Package manifest reads required-resource files: a mapping from package name
// to either a version string or a table of install settings.
//
// Simple form (JSON shown; TOML and YAML are equivalent):
//
//	{ "Pester": "[5.0,6.0)", "PSReadLine": "2.3.4" }
//
// Detailed form:
//
//	{
//	  "Pester": { "version": "[5.0,6.0)", "repository": "PSGallery", "trustRepository": true },
//	  "Az.Tools.Predictor": { "prerelease": true, "acceptLicense": true }
//	}
//
// Both forms may be mixed. Keys of a detailed entry match case-insensitively;
// unknown keys and wrongly typed values are MANIFEST_FORMAT errors.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/install"
)

// Format is a manifest encoding.
type Format string

const (
	JSON Format = "json"
	TOML Format = "toml"
	YAML Format = "yaml"
)

// FormatOf picks the format from a file extension, defaulting to JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Resource is one requested package with its per-package settings.
type Resource struct {
	Name            string `mapstructure:"-"`
	Version         string `mapstructure:"version"`
	Prerelease      bool   `mapstructure:"prerelease"`
	Repository      string `mapstructure:"repository"`
	Scope           string `mapstructure:"scope"`
	AcceptLicense   bool   `mapstructure:"acceptLicense"`
	Quiet           bool   `mapstructure:"quiet"`
	Reinstall       bool   `mapstructure:"reinstall"`
	Force           bool   `mapstructure:"force"`
	TrustRepository bool   `mapstructure:"trustRepository"`
	NoClobber       bool   `mapstructure:"noClobber"`
	Credential      string `mapstructure:"credential"`
}

// Request converts r to an install request.
func (r Resource) Request() install.Request {
	return install.Request{Name: r.Name, Constraint: r.Version, Prerelease: r.Prerelease}
}

// Apply overlays r's switches onto opts. Switches only ever turn settings on.
func (r Resource) Apply(opts install.Options) install.Options {
	opts.AcceptLicense = opts.AcceptLicense || r.AcceptLicense
	opts.Quiet = opts.Quiet || r.Quiet
	opts.Reinstall = opts.Reinstall || r.Reinstall
	opts.Force = opts.Force || r.Force
	opts.TrustRepository = opts.TrustRepository || r.TrustRepository
	opts.NoClobber = opts.NoClobber || r.NoClobber
	return opts
}

// Manifest is a decoded required-resource file.
type Manifest struct {
	Resources []Resource // sorted by name
}

// Load reads and parses path, choosing the format by extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeManifestFormat, err, "read manifest %s", path)
	}
	return Parse(data, FormatOf(path))
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Manifest, error) {
	raw := make(map[string]any)
	var err error
	switch format {
	case TOML:
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&raw)
	case YAML:
		err = yaml.Unmarshal(data, &raw)
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&raw)
	default:
		return nil, perrors.New(perrors.ErrCodeManifestFormat, "unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeManifestFormat, err, "decode %s manifest", format)
	}
	if len(raw) == 0 {
		return nil, perrors.New(perrors.ErrCodeManifestFormat, "manifest names no packages")
	}

	m := &Manifest{}
	seen := make(map[string]bool)
	for name, value := range raw {
		if seen[strings.ToLower(name)] {
			return nil, perrors.New(perrors.ErrCodeManifestFormat, "package listed twice").WithPackage(name)
		}
		seen[strings.ToLower(name)] = true

		r, err := decodeResource(name, value)
		if err != nil {
			return nil, err
		}
		m.Resources = append(m.Resources, r)
	}
	sort.Slice(m.Resources, func(i, j int) bool {
		return strings.ToLower(m.Resources[i].Name) < strings.ToLower(m.Resources[j].Name)
	})
	return m, nil
}

func decodeResource(name string, value any) (Resource, error) {
	if err := perrors.ValidatePackageName(name); err != nil {
		return Resource{}, perrors.Wrap(perrors.ErrCodeManifestFormat, err, "invalid package name").WithPackage(name)
	}
	r := Resource{Name: name}
	switch v := value.(type) {
	case string:
		r.Version = v
		return r, nil
	case map[string]any:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &r,
			ErrorUnused: true,
		})
		if err != nil {
			return Resource{}, err
		}
		if err := dec.Decode(v); err != nil {
			return Resource{}, perrors.Wrap(perrors.ErrCodeManifestFormat, err, "invalid settings").WithPackage(name)
		}
		r.Name = name
		return r, nil
	default:
		return Resource{}, perrors.New(perrors.ErrCodeManifestFormat,
			"expected a version string or a table, got %s", describe(value)).WithPackage(name)
	}
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

// Requests returns every resource as an install request.
func (m *Manifest) Requests() []install.Request {
	out := make([]install.Request, 0, len(m.Resources))
	for _, r := range m.Resources {
		out = append(out, r.Request())
	}
	return out
}

// Groups splits the manifest into batches sharing the same repository,
// scope and switches, in name order of their first member. Each batch can be
// installed with one selector call.
func (m *Manifest) Groups() [][]Resource {
	var (
		order  []string
		groups = make(map[string][]Resource)
	)
	for _, r := range m.Resources {
		k := r.groupKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	out := make([][]Resource, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func (r Resource) groupKey() string {
	return fmt.Sprintf("%s|%s|%s|%t%t%t%t%t%t", strings.ToLower(r.Repository), strings.ToLower(r.Scope),
		strings.ToLower(r.Credential), r.AcceptLicense, r.Quiet, r.Reinstall, r.Force, r.TrustRepository, r.NoClobber)
}
