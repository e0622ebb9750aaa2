package deps_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/psresget/pkg/deps"
	"github.com/matzehuels/psresget/pkg/descriptor"
	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/feedtest"
	"github.com/matzehuels/psresget/pkg/inventory"
	"github.com/matzehuels/psresget/pkg/version"
)

func ids(cands []feed.Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.String())
	}
	return out
}

func root(t *testing.T, mem *feedtest.Memory, id string) feed.Candidate {
	t.Helper()
	cands, err := mem.QueryVersions(context.Background(), id, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := version.Resolve(id, version.Any(), false, cands)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExpandTransitive(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("App", []string{"1.0.0"}, "Lib@[1.0,2.0)", "Util")
	mem.AddModule("Lib", []string{"1.0.0", "1.4.0", "2.0.0"}, "Core@1.1")
	mem.AddModule("Util", []string{"0.9.0", "1.0.0-beta"})
	mem.AddModule("Core", []string{"1.0.0", "1.1.0", "1.2.0"})

	exp, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	want := []string{"Lib 1.4.0", "Util 0.9.0", "Core 1.2.0"}
	if got := ids(exp.Candidates); !slices.Equal(got, want) {
		t.Errorf("Candidates = %v, want %v", got, want)
	}
	if exp.Resolved["core"] != "1.2.0" {
		t.Errorf("Resolved = %v", exp.Resolved)
	}
	if got := exp.ResolvedFor(exp.Root); len(got) != 2 || got["lib"] != "1.4.0" {
		t.Errorf("ResolvedFor(root) = %v", got)
	}
	if exp.Graph.NodeCount() != 4 || len(exp.Graph.Edges()) != 3 {
		t.Errorf("graph has %d nodes, %d edges", exp.Graph.NodeCount(), len(exp.Graph.Edges()))
	}
}

func TestExpandCycleTerminates(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("A", []string{"1.0.0"}, "B")
	mem.AddModule("B", []string{"1.0.0"}, "A")

	exp, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "A"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"B 1.0.0"}) {
		t.Errorf("Candidates = %v", got)
	}
	if !exp.Graph.HasCycle() {
		t.Error("graph should record the A -> B -> A cycle")
	}
}

func TestExpandDiamondResolvesOnce(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("Top", []string{"1.0.0"}, "Left", "Right")
	mem.AddModule("Left", []string{"1.0.0"}, "Base")
	mem.AddModule("Right", []string{"1.0.0"}, "base@[1.0,3.0)")
	mem.AddModule("Base", []string{"1.0.0", "2.0.0"})

	exp, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "Top"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"Left 1.0.0", "Right 1.0.0", "Base 2.0.0"}) {
		t.Errorf("Candidates = %v", got)
	}
	if n := slices.Index(mem.Queries(), "base"); n != -1 {
		t.Errorf("Base should be queried once, under its first spelling: %v", mem.Queries())
	}
}

func TestExpandConflictingDiamond(t *testing.T) {
	tests := []struct {
		name      string
		installed string
		right     string
		wantErr   bool
	}{
		{"disjoint ranges", "", "Base@[2.0,)", true},
		{"exact pin outside first choice", "", "Base@[2.0]", true},
		{"overlapping ranges", "", "Base@[1.2,3.0)", false},
		{"satisfied version violates second range", "1.0.0", "Base@[1.2,)", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := feedtest.NewMemory("repo")
			mem.AddModule("App", []string{"1.0.0"}, "Left", "Right")
			mem.AddModule("Left", []string{"1.0.0"}, "Base@[1.0,2.0)")
			mem.AddModule("Right", []string{"1.0.0"}, tt.right)
			mem.AddModule("Base", []string{"1.0.0", "1.5.0", "2.1.0"})

			var inv *inventory.Inventory
			if tt.installed != "" {
				inv = inventory.New()
				inv.Record("Base", descriptor.Module, version.MustParse(tt.installed), nil)
			}

			exp, err := deps.NewBuilder(mem, inv, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Expand() error: %v", err)
				}
				if exp.Resolved["base"] != "1.5.0" {
					t.Errorf("Resolved = %v", exp.Resolved)
				}
				return
			}
			if !perrors.Is(err, perrors.ErrCodeDependencyConflict) {
				t.Fatalf("Expand() error = %v, want DEPENDENCY_CONFLICT", err)
			}
			for _, want := range []string{"Left", "Right", "[1.0,2.0)"} {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %s", err, want)
				}
			}
		})
	}
}

func TestExpandCycleBackToRootChecksRange(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("A", []string{"1.0.0"}, "B")
	mem.AddModule("B", []string{"1.0.0"}, "A@[2.0,)")

	_, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "A"))
	if !perrors.Is(err, perrors.ErrCodeDependencyConflict) {
		t.Errorf("Expand() error = %v, want DEPENDENCY_CONFLICT", err)
	}
}

func TestExpandSatisfiedBranchStillWalked(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("App", []string{"1.0.0"}, "Lib")
	mem.AddModule("Lib", []string{"1.0.0"}, "Core")
	mem.AddModule("Core", []string{"1.0.0"})

	inv := inventory.New()
	inv.Record("Lib", descriptor.Module, version.MustParse("1.0.0"), nil)

	exp, err := deps.NewBuilder(mem, inv, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"Core 1.0.0"}) {
		t.Errorf("Candidates = %v", got)
	}
	if n, _ := exp.Graph.Node("Lib"); n.State != deps.StateSatisfied {
		t.Errorf("Lib state = %s", n.State)
	}

	exp, err = deps.NewBuilder(mem, inv, deps.Options{Reinstall: true}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand(reinstall) error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"Lib 1.0.0", "Core 1.0.0"}) {
		t.Errorf("Candidates with reinstall = %v", got)
	}
}

func TestExpandInstalledButUnpublished(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("App", []string{"1.0.0"}, "Gone@[1.0,2.0)")

	inv := inventory.New()
	inv.Record("Gone", descriptor.Module, version.MustParse("1.2.0"), nil)

	exp, err := deps.NewBuilder(mem, inv, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if len(exp.Candidates) != 0 || exp.Resolved["gone"] != "1.2.0" {
		t.Errorf("Candidates = %v, Resolved = %v", ids(exp.Candidates), exp.Resolved)
	}
}

func TestExpandPrerelease(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("App", []string{"1.0.0"}, "Lib", "Edge@[2.0.0-alpha,)")
	mem.AddModule("Lib", []string{"1.0.0", "1.1.0-rc1"})
	mem.AddModule("Edge", []string{"2.0.0-beta"})

	exp, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"Lib 1.0.0", "Edge 2.0.0-beta"}) {
		t.Errorf("Candidates = %v", got)
	}

	exp, err = deps.NewBuilder(mem, nil, deps.Options{Prerelease: true}).Expand(context.Background(), root(t, mem, "App"))
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got := ids(exp.Candidates); !slices.Equal(got, []string{"Lib 1.1.0-rc1", "Edge 2.0.0-beta"}) {
		t.Errorf("Candidates with prerelease = %v", got)
	}
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name string
		dep  string
		code perrors.Code
	}{
		{"malformed range", "Lib@[1.0,", perrors.ErrCodeConstraintParse},
		{"missing dependency", "Missing", perrors.ErrCodePackageNotFound},
		{"unsatisfiable range", "Lib@[5.0,)", perrors.ErrCodePackageNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := feedtest.NewMemory("repo")
			mem.AddModule("App", []string{"1.0.0"}, tt.dep)
			mem.AddModule("Lib", []string{"1.0.0"})

			_, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(context.Background(), root(t, mem, "App"))
			if !perrors.Is(err, tt.code) {
				t.Errorf("Expand() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestExpandCanceled(t *testing.T) {
	mem := feedtest.NewMemory("repo")
	mem.AddModule("App", []string{"1.0.0"}, "Lib")
	mem.AddModule("Lib", []string{"1.0.0"})
	r := root(t, mem, "App")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := deps.NewBuilder(mem, nil, deps.Options{}).Expand(ctx, r); !errors.Is(err, context.Canceled) {
		t.Errorf("Expand() error = %v, want context.Canceled", err)
	}
}
