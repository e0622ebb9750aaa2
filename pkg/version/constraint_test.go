package version

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		input string
		in    []string
		out   []string
	}{
		{"", []string{"0.1", "99.0"}, nil},
		{"*", []string{"0.1", "99.0"}, nil},
		{"1.0", []string{"1.0", "1.5", "10.0"}, []string{"0.9"}},
		{"[1.0]", []string{"1.0", "1.0.0.0"}, []string{"1.0.1", "0.9"}},
		{"(1.0,)", []string{"1.0.1", "5.0"}, []string{"1.0"}},
		{"(,2.0]", []string{"0.1", "2.0"}, []string{"2.0.1"}},
		{"(,2.0)", []string{"1.9.9"}, []string{"2.0"}},
		{"[1.0,2.0)", []string{"1.0", "1.9.9"}, []string{"0.9", "2.0"}},
		{"[1.0,2.0]", []string{"1.0", "2.0"}, []string{"2.0.1"}},
		{"(1.0,2.0)", []string{"1.5"}, []string{"1.0", "2.0"}},
		{" [ 1.0 , 2.0 ) ", []string{"1.5"}, []string{"2.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, err := ParseRange(tt.input)
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.input, err)
			}
			for _, s := range tt.in {
				if !c.Satisfies(MustParse(s)) {
					t.Errorf("%s should satisfy %q", s, tt.input)
				}
			}
			for _, s := range tt.out {
				if c.Satisfies(MustParse(s)) {
					t.Errorf("%s should not satisfy %q", s, tt.input)
				}
			}
		})
	}
}

func TestParseRequestBareIsExact(t *testing.T) {
	c, err := ParseRequest("1.2.0")
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if !c.IsExact() {
		t.Errorf("ParseRequest(1.2.0) = %s, want exact", c)
	}
	if c.Satisfies(MustParse("1.3.0")) {
		t.Error("1.3.0 should not satisfy request 1.2.0")
	}

	dep, err := ParseRange("1.2.0")
	if err != nil {
		t.Fatalf("ParseRange() error: %v", err)
	}
	if dep.IsExact() || !dep.Satisfies(MustParse("1.3.0")) {
		t.Errorf("ParseRange(1.2.0) = %s, want minimum", dep)
	}

	ranged, err := ParseRequest("[1.0,2.0)")
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if !ranged.Satisfies(MustParse("1.5")) {
		t.Error("ParseRequest should honor interval notation")
	}
}

func TestParseRangeInvalid(t *testing.T) {
	for _, input := range []string{
		"[1.0", "1.0]", "(1.0)", "[,]", "(,)", "[1.0,2.0,3.0)", "[2.0,1.0]",
		"(1.0,1.0)", "[1.0,1.0)", "[abc,2.0)", "[1.0,xyz)", "{1.0}", "[,2.0]", "[1.0,]", "not-a-version", "[[1.0]]",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRange(input)
			if err == nil {
				t.Fatalf("ParseRange(%q) expected error", input)
			}
			if !errors.Is(err, ErrInvalidConstraint) {
				t.Errorf("error %v does not wrap ErrInvalidConstraint", err)
			}
			var ce *ConstraintError
			if !errors.As(err, &ce) || ce.Value != input {
				t.Errorf("error %v is not a ConstraintError for %q", err, input)
			}
		})
	}
}

func TestConstraintString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "*"},
		{"1.0", "[1.0.0,)"},
		{"[1.0]", "[1.0.0]"},
		{"(,2.0]", "(,2.0.0]"},
		{"[1.0,2.0)", "[1.0.0,2.0.0)"},
		{"[1.0,1.0]", "[1.0.0]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, err := ParseRange(tt.input)
			if err != nil {
				t.Fatalf("ParseRange() error: %v", err)
			}
			if got := c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	c, _ := ParseRange("[1.0,2.0)")
	lo, ok := c.Min()
	if !ok || lo.String() != "1.0.0" {
		t.Errorf("Min() = %v, %v", lo, ok)
	}
	hi, ok := c.Max()
	if !ok || hi.String() != "2.0.0" {
		t.Errorf("Max() = %v, %v", hi, ok)
	}
	if _, ok := Any().Min(); ok {
		t.Error("Any().Min() should be open")
	}
}
