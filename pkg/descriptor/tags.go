// Package descriptor handles the metadata psresget writes next to every
// installed package, and the tag conventions it is derived from.
//
// PowerShell packages encode their kind and exported capabilities as feed
// tags:
//
//	PSModule PSScript                      package kind
//	PSCommand_Get-Foo                      exported command
//	PSFunction_Get-Foo PSCmdlet_Set-Foo    functions and cmdlets
//	PSDscResource_FooResource              DSC resources
//	PSRoleCapability_FooAdmin              JEA role capabilities
//	PSWorkflow_Deploy-Foo                  workflows
//
// [ParseTags] is a pure function over the tag list.
package descriptor

import (
	"slices"
	"strings"
)

// Kind distinguishes modules from scripts. They install to different roots
// and use different descriptor file names.
type Kind string

const (
	Module Kind = "Module"
	Script Kind = "Script"
)

// Includes lists the capabilities a package declares through its tags.
type Includes struct {
	Command        []string `xml:"Command,omitempty"`
	Function       []string `xml:"Function,omitempty"`
	Cmdlet         []string `xml:"Cmdlet,omitempty"`
	DscResource    []string `xml:"DscResource,omitempty"`
	RoleCapability []string `xml:"RoleCapability,omitempty"`
	Workflow       []string `xml:"Workflow,omitempty"`
}

var capabilityPrefixes = []struct {
	prefix string
	field  func(*Includes) *[]string
}{
	{"PSCommand_", func(i *Includes) *[]string { return &i.Command }},
	{"PSFunction_", func(i *Includes) *[]string { return &i.Function }},
	{"PSCmdlet_", func(i *Includes) *[]string { return &i.Cmdlet }},
	{"PSDscResource_", func(i *Includes) *[]string { return &i.DscResource }},
	{"PSRoleCapability_", func(i *Includes) *[]string { return &i.RoleCapability }},
	{"PSWorkflow_", func(i *Includes) *[]string { return &i.Workflow }},
}

// KindOf returns Script when tags contain "PSScript" (case-insensitive),
// Module otherwise.
func KindOf(tags []string) Kind {
	for _, t := range tags {
		if strings.EqualFold(t, "PSScript") {
			return Script
		}
	}
	return Module
}

// ParseTags returns the package kind and declared capabilities. Prefixes
// match case-insensitively; names keep their published case and are
// de-duplicated per category.
func ParseTags(tags []string) (Kind, Includes) {
	var inc Includes
	for _, t := range tags {
		for _, p := range capabilityPrefixes {
			if len(t) <= len(p.prefix) || !strings.EqualFold(t[:len(p.prefix)], p.prefix) {
				continue
			}
			name := t[len(p.prefix):]
			list := p.field(&inc)
			if !containsFold(*list, name) {
				*list = append(*list, name)
			}
			break
		}
	}
	return KindOf(tags), inc
}

// Commands returns every name the package would put on the command surface:
// commands, functions, cmdlets and workflows, de-duplicated case-insensitively.
func (i Includes) Commands() []string {
	var out []string
	for _, list := range [][]string{i.Command, i.Function, i.Cmdlet, i.Workflow} {
		for _, name := range list {
			if !containsFold(out, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// ExportedCommands is shorthand for the command surface declared by tags.
func ExportedCommands(tags []string) []string {
	_, inc := ParseTags(tags)
	return inc.Commands()
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(x string) bool { return strings.EqualFold(x, s) })
}
