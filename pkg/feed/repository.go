package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	perrors "github.com/matzehuels/psresget/pkg/errors"
)

// Gallery is the repository registered when no registry file exists yet.
var Gallery = Repository{
	Name:     "PSGallery",
	URL:      "https://www.powershellgallery.com/api/v2",
	Priority: 50,
}

// Repository is a registered package source. Lower Priority values are
// tried first; ties are broken by name.
type Repository struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Trusted  bool   `toml:"trusted"`
	Priority int    `toml:"priority"`

	// Credential is attached at runtime from the credential store and never
	// written to the registry file.
	Credential *Credential `toml:"-"`
}

// Credential authenticates against a repository. Either Username/Password
// (HTTP basic auth) or APIKey (X-NuGet-ApiKey header) is used.
type Credential struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Source returns the identity recorded on candidates from r.
func (r Repository) Source() Source {
	return Source{Name: r.Name, URL: r.URL}
}

// Registry is the set of registered repositories, persisted as TOML:
//
//	[[repository]]
//	name = "PSGallery"
//	url = "https://www.powershellgallery.com/api/v2"
//	trusted = false
//	priority = 50
type Registry struct {
	Repositories []Repository `toml:"repository"`
}

// LoadRegistry reads the registry at path. A missing file yields a registry
// holding only [Gallery].
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Registry{Repositories: []Repository{Gallery}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var r Registry
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "parse registry %s", path)
	}
	for _, repo := range r.Repositories {
		if err := perrors.ValidateRepositoryName(repo.Name); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// Save writes the registry to path, replacing it atomically.
func (r *Registry) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".repositories-*.toml")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(r); err != nil {
		tmp.Close()
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Lookup finds a repository by case-insensitive name.
func (r *Registry) Lookup(name string) (Repository, bool) {
	for _, repo := range r.Repositories {
		if strings.EqualFold(repo.Name, name) {
			return repo, true
		}
	}
	return Repository{}, false
}

// Add registers repo, replacing any repository with the same name.
func (r *Registry) Add(repo Repository) error {
	if err := perrors.ValidateRepositoryName(repo.Name); err != nil {
		return err
	}
	if err := perrors.ValidateURL(repo.URL); err != nil {
		return err
	}
	r.Repositories = slices.DeleteFunc(r.Repositories, func(x Repository) bool {
		return strings.EqualFold(x.Name, repo.Name)
	})
	r.Repositories = append(r.Repositories, repo)
	return nil
}

// Remove unregisters name and reports whether it was present.
func (r *Registry) Remove(name string) bool {
	n := len(r.Repositories)
	r.Repositories = slices.DeleteFunc(r.Repositories, func(x Repository) bool {
		return strings.EqualFold(x.Name, name)
	})
	return len(r.Repositories) != n
}

// Ordered returns repositories in fallback order. With no names, every
// registered repository is returned sorted by priority then name. With
// names, exactly those repositories are returned in the order given; an
// unknown name is an INVALID_INPUT error.
func (r *Registry) Ordered(names ...string) ([]Repository, error) {
	if len(names) == 0 {
		out := slices.Clone(r.Repositories)
		slices.SortStableFunc(out, func(a, b Repository) int {
			if a.Priority != b.Priority {
				return a.Priority - b.Priority
			}
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		return out, nil
	}

	out := make([]Repository, 0, len(names))
	for _, name := range names {
		repo, ok := r.Lookup(name)
		if !ok {
			return nil, perrors.New(perrors.ErrCodeInvalidInput, "unknown repository %q", name).WithRepository(name)
		}
		out = append(out, repo)
	}
	return out, nil
}
