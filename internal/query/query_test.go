package query

import "testing"

func TestParseFuzzyOnly(t *testing.T) {
	got, err := Parse("main handler", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.FuzzyTerm.Kind != KindParts {
		t.Fatalf("kind = %v, want Parts", got.FuzzyTerm.Kind)
	}
	if len(got.FuzzyTerm.Parts) != 2 || got.FuzzyTerm.Parts[0] != "main" || got.FuzzyTerm.Parts[1] != "handler" {
		t.Fatalf("parts = %v", got.FuzzyTerm.Parts)
	}
	if len(got.Constraints) != 0 {
		t.Fatalf("constraints = %v, want none", got.Constraints)
	}
}

func TestParseSingleTextIsText(t *testing.T) {
	got, err := Parse("main", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.FuzzyTerm.Kind != KindText || got.FuzzyTerm.Text != "main" {
		t.Fatalf("got %+v", got.FuzzyTerm)
	}
}

func TestParseNegatedTextAndExtension(t *testing.T) {
	got, err := Parse("!tests *.rs", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.FuzzyTerm.Kind != KindEmpty {
		t.Fatalf("fuzzy term = %+v, want empty", got.FuzzyTerm)
	}
	if len(got.Constraints) != 2 {
		t.Fatalf("constraints = %+v, want 2", got.Constraints)
	}
	not := got.Constraints[0]
	if not.Kind != KindNot || not.Inner == nil || not.Inner.Kind != KindText || not.Inner.Value != "tests" {
		t.Fatalf("constraint[0] = %+v", not)
	}
	ext := got.Constraints[1]
	if ext.Kind != KindExtension || ext.Value != "rs" {
		t.Fatalf("constraint[1] = %+v", ext)
	}
}

func TestParseGitStatusConstraint(t *testing.T) {
	got, err := Parse("status:modified", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Constraints) != 1 || got.Constraints[0].Kind != KindGitStatus || got.Constraints[0].Status != GitStatusModified {
		t.Fatalf("constraints = %+v", got.Constraints)
	}
}

func TestParseInvalidGitStatus(t *testing.T) {
	_, err := Parse("status:bogus", DefaultConfig())
	var invalid *InvalidConstraintError
	if err == nil {
		t.Fatal("expected error")
	}
	if !As(err, &invalid) {
		t.Fatalf("error type = %T, want *InvalidConstraintError", err)
	}
}

// As is a tiny local errors.As to avoid importing errors just for this test.
func As(err error, target **InvalidConstraintError) bool {
	if e, ok := err.(*InvalidConstraintError); ok {
		*target = e
		return true
	}
	return false
}

func TestParseGrepConfigDisablesExtension(t *testing.T) {
	got, err := Parse("*.rs", GrepConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Constraints) != 0 {
		t.Fatalf("constraints = %+v, want none (falls through to text)", got.Constraints)
	}
	if got.FuzzyTerm.Kind != KindText || got.FuzzyTerm.Text != "*.rs" {
		t.Fatalf("fuzzy term = %+v", got.FuzzyTerm)
	}
}

func TestParseLocationSuffix(t *testing.T) {
	got, err := Parse("main.go:42:7", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Location == nil || got.Location.Line != 42 || got.Location.Col != 7 {
		t.Fatalf("location = %+v", got.Location)
	}
	if got.FuzzyTerm.Kind != KindText || got.FuzzyTerm.Text != "main.go" {
		t.Fatalf("fuzzy term = %+v", got.FuzzyTerm)
	}
}

func TestParsePathSegmentAndFileType(t *testing.T) {
	got, err := Parse("/internal/ type:rust", DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Constraints) != 2 {
		t.Fatalf("constraints = %+v", got.Constraints)
	}
	if got.Constraints[0].Kind != KindPathSegment || got.Constraints[0].Value != "internal" {
		t.Fatalf("constraint[0] = %+v", got.Constraints[0])
	}
	if got.Constraints[1].Kind != KindFileType || got.Constraints[1].Value != "rust" {
		t.Fatalf("constraint[1] = %+v", got.Constraints[1])
	}
}
