package install

import (
	"context"
	"slices"
	"sort"
	"testing"

	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/feedtest"
)

func candidateNames(cs []feed.Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

func TestFind(t *testing.T) {
	first := feedtest.NewMemory("first")
	first.AddModule("Az.Accounts", []string{"2.0.0", "2.1.0"})
	first.AddModule("Az.Storage", []string{"5.0.0"}, "Az.Accounts@2.0")
	second := feedtest.NewMemory("second")
	second.AddModule("Az.Compute", []string{"1.0.0"})
	second.AddModule("Pester", []string{"5.5.0"})
	fx := newFixture(t, first, second)
	sel := NewSelector(fx.engine)

	tests := []struct {
		name    string
		reqs    []Request
		opts    FindOptions
		want    []string
		missing int
	}{
		{
			name: "exact name stops at first repository",
			reqs: []Request{{Name: "Pester"}},
			want: []string{"Pester 5.5.0"},
		},
		{
			name: "pattern searches every repository",
			reqs: []Request{{Name: "Az.*"}},
			want: []string{"Az.Accounts 2.1.0", "Az.Compute 1.0.0", "Az.Storage 5.0.0"},
		},
		{
			name: "constraint",
			reqs: []Request{{Name: "Az.Accounts", Constraint: "2.0.0"}},
			want: []string{"Az.Accounts 2.0.0"},
		},
		{
			name: "with dependencies",
			reqs: []Request{{Name: "Az.Storage"}},
			opts: FindOptions{IncludeDependencies: true},
			want: []string{"Az.Accounts 2.1.0", "Az.Storage 5.0.0"},
		},
		{
			name:    "missing",
			reqs:    []Request{{Name: "Nope"}, {Name: "Zz*"}},
			missing: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing, err := sel.Find(context.Background(), tt.reqs, fx.repos("first", "second"), tt.opts)
			if err != nil {
				t.Fatalf("Find() error: %v", err)
			}
			if names := candidateNames(got); !slices.Equal(names, tt.want) {
				t.Errorf("Find() = %v, want %v", names, tt.want)
			}
			if len(missing) != tt.missing {
				t.Errorf("missing = %v", missing)
			}
		})
	}
}
