// Package inventory takes point-in-time snapshots of the local package store.
//
// Modules live under <root>/<Id>/<Version>/ with a PSGetModuleInfo.xml
// descriptor; scripts live flat under the script root with descriptors in
// InstalledScriptInfos/. Version directories whose names do not parse as
// versions are ignored: they never count as installed.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/matzehuels/psresget/pkg/descriptor"
	"github.com/matzehuels/psresget/pkg/version"
)

// Layout names the filesystem roots of the package store.
type Layout struct {
	// ModuleRoot receives installed modules.
	ModuleRoot string
	// ScriptRoot receives installed scripts.
	ScriptRoot string
	// SearchModuleRoots are further module roots (for example the all-users
	// root while installing for the current user). Packages found there
	// satisfy requests and export commands but are never written to.
	SearchModuleRoots []string
}

// ScriptInfoDir returns the directory holding script descriptors.
func (l Layout) ScriptInfoDir() string {
	return filepath.Join(l.ScriptRoot, descriptor.ScriptInfoDir)
}

// Entry is one installed package id.
type Entry struct {
	ID       string
	Kind     descriptor.Kind
	Versions []version.Version // ascending
	Commands []string
}

// Latest returns the highest installed version.
func (e Entry) Latest() version.Version {
	return e.Versions[len(e.Versions)-1]
}

// Inventory is a snapshot of installed packages. It is safe for concurrent
// use.
type Inventory struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	commands map[string]string // lower-cased command -> owning package id
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{
		entries:  make(map[string]*Entry),
		commands: make(map[string]string),
	}
}

// Load scans every root of layout. Missing roots are treated as empty.
func Load(layout Layout) (*Inventory, error) {
	inv := New()
	roots := append([]string{layout.ModuleRoot}, layout.SearchModuleRoots...)
	for _, root := range roots {
		if root == "" {
			continue
		}
		if err := inv.loadModules(root); err != nil {
			return nil, err
		}
	}
	if layout.ScriptRoot != "" {
		if err := inv.loadScripts(layout.ScriptInfoDir()); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func (inv *Inventory) loadModules(root string) error {
	ids, err := readDirs(root)
	if err != nil {
		return fmt.Errorf("scan module root %s: %w", root, err)
	}
	for _, id := range ids {
		versions, err := readDirs(filepath.Join(root, id))
		if err != nil {
			return fmt.Errorf("scan module %s: %w", id, err)
		}
		for _, name := range versions {
			v, err := version.Parse(name)
			if err != nil {
				continue
			}
			var commands []string
			d, err := descriptor.Read(filepath.Join(root, id, name, descriptor.ModuleFileName))
			if err == nil {
				commands = d.Commands()
			}
			inv.add(id, descriptor.Module, v, commands)
		}
	}
	return nil
}

func (inv *Inventory) loadScripts(dir string) error {
	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan script descriptors %s: %w", dir, err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), "_InstalledScriptInfo.xml") {
			continue
		}
		d, err := descriptor.Read(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}
		v, err := version.Parse(d.Version)
		if err != nil || d.Name == "" {
			continue
		}
		inv.add(d.Name, descriptor.Script, v, d.Commands())
	}
	return nil
}

func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Record adds a package to the snapshot. The engine calls it while staging,
// before anything is promoted, so later candidates of the same plan are
// checked against the commands of earlier ones.
func (inv *Inventory) Record(id string, kind descriptor.Kind, v version.Version, commands []string) {
	inv.add(id, kind, v, commands)
}

func (inv *Inventory) add(id string, kind descriptor.Kind, v version.Version, commands []string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	key := strings.ToLower(id)
	e, ok := inv.entries[key]
	if !ok {
		e = &Entry{ID: id, Kind: kind}
		inv.entries[key] = e
	}
	if !slices.ContainsFunc(e.Versions, v.Equal) {
		e.Versions = append(e.Versions, v)
		slices.SortFunc(e.Versions, version.Compare)
	}
	for _, c := range commands {
		lc := strings.ToLower(c)
		if _, taken := inv.commands[lc]; !taken {
			inv.commands[lc] = id
		}
		if !slices.ContainsFunc(e.Commands, func(x string) bool { return strings.EqualFold(x, c) }) {
			e.Commands = append(e.Commands, c)
		}
	}
}

// Has reports whether any version of id is installed.
func (inv *Inventory) Has(id string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	_, ok := inv.entries[strings.ToLower(id)]
	return ok
}

// Versions returns the installed versions of id in ascending order.
func (inv *Inventory) Versions(id string) []version.Version {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	e, ok := inv.entries[strings.ToLower(id)]
	if !ok {
		return nil
	}
	return slices.Clone(e.Versions)
}

// Satisfied returns the highest installed version of id that c accepts.
func (inv *Inventory) Satisfied(id string, c version.Constraint) (version.Version, bool) {
	vs := inv.Versions(id)
	for i := len(vs) - 1; i >= 0; i-- {
		if c.Satisfies(vs[i]) {
			return vs[i], true
		}
	}
	return version.Version{}, false
}

// Conflicts returns the commands in names that are already exported by an
// installed package other than id.
func (inv *Inventory) Conflicts(id string, names []string) []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	var out []string
	for _, n := range names {
		owner, ok := inv.commands[strings.ToLower(n)]
		if ok && !strings.EqualFold(owner, id) {
			out = append(out, n)
		}
	}
	return out
}

// Entries returns every installed package sorted by id.
func (inv *Inventory) Entries() []Entry {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]Entry, 0, len(inv.entries))
	for _, e := range inv.entries {
		cp := *e
		cp.Versions = slices.Clone(e.Versions)
		cp.Commands = slices.Clone(e.Commands)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID)
	})
	return out
}

// Len returns the number of installed package ids.
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.entries)
}
