package descriptor_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/psresget/pkg/descriptor"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/feedtest"
)

func TestFileName(t *testing.T) {
	if got := descriptor.FileName(descriptor.Module, "Foo"); got != "PSGetModuleInfo.xml" {
		t.Errorf("module file = %q", got)
	}
	if got := descriptor.FileName(descriptor.Script, "Foo"); got != "Foo_InstalledScriptInfo.xml" {
		t.Errorf("script file = %q", got)
	}
}

func TestFromCandidate(t *testing.T) {
	c := feedtest.Module("Foo", "1.2.0", "Bar@[1.0,2.0)", "Baz")
	c.Tags = append(c.Tags, "PSCommand_Get-Foo", "PSDscResource_FooDsc")
	c.Description = "Foo tools"
	c.Owners = "Contoso"
	c.LicenseURL = "https://example.test/license"
	c.Repository = feed.Source{Name: "PSGallery", URL: "https://www.powershellgallery.com/api/v2"}

	installed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := descriptor.FromCandidate(c, map[string]string{"bar": "1.5.0"}, installed)

	if d.Name != "Foo" || d.Version != "1.2.0" || d.Type != descriptor.Module {
		t.Errorf("identity = %s %s %s", d.Name, d.Version, d.Type)
	}
	if d.CompanyName != "Contoso" || d.Author != "test" || d.Description != "Foo tools" {
		t.Errorf("metadata = %+v", d)
	}
	if !d.Installed.Equal(installed) {
		t.Errorf("Installed = %v", d.Installed)
	}
	if d.RepositorySourceLocation != c.Repository.URL {
		t.Errorf("RepositorySourceLocation = %q", d.RepositorySourceLocation)
	}
	if len(d.Includes.Command) != 1 || len(d.Includes.DscResource) != 1 {
		t.Errorf("Includes = %+v", d.Includes)
	}
	if len(d.Dependencies) != 2 {
		t.Fatalf("Dependencies = %+v", d.Dependencies)
	}
	if dep := d.Dependencies[0]; dep.Name != "Bar" || dep.Version != "1.5.0" || dep.Range != "[1.0,2.0)" {
		t.Errorf("Dependencies[0] = %+v", dep)
	}
	if dep := d.Dependencies[1]; dep.Name != "Baz" || dep.Version != "" {
		t.Errorf("Dependencies[1] = %+v", dep)
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	c := feedtest.Script("Deploy", "0.3.1-beta")
	c.Tags = append(c.Tags, "PSFunction_Invoke-Deploy")
	d := descriptor.FromCandidate(c, nil, time.Now())

	path, err := descriptor.Write(dir, d)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if filepath.Base(path) != "Deploy_InstalledScriptInfo.xml" {
		t.Errorf("path = %s", path)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "<?xml") {
		t.Error("descriptor should start with an XML declaration")
	}

	got, err := descriptor.Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got.Name != "Deploy" || got.Version != "0.3.1-beta" || got.Type != descriptor.Script {
		t.Errorf("Read() = %+v", got)
	}
	if cmds := got.Commands(); len(cmds) != 1 || cmds[0] != "Invoke-Deploy" {
		t.Errorf("Commands() = %v", cmds)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PSGetModuleInfo.xml")
	os.WriteFile(path, []byte("<PSGetItemInfo><Name>"), 0o644)
	if _, err := descriptor.Read(path); err == nil {
		t.Error("Read() of truncated XML should fail")
	}
}
