// Package query parses the small constraint language shared by the file
// picker and the live-grep engine: a whitespace-separated string mixing
// fuzzy text with typed constraint tokens (*.ext, /segment/, type:name,
// status:name, !negation) and an optional trailing name:LINE[:COL] locator.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Constraint or of the fuzzy term.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindParts
	KindExtension
	KindGlob
	KindPathSegment
	KindFileType
	KindGitStatus
	KindNot
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindParts:
		return "parts"
	case KindExtension:
		return "extension"
	case KindGlob:
		return "glob"
	case KindPathSegment:
		return "path_segment"
	case KindFileType:
		return "file_type"
	case KindGitStatus:
		return "git_status"
	case KindNot:
		return "not"
	default:
		return "unknown"
	}
}

// GitStatus mirrors the working-tree status tags a query can filter on.
type GitStatus int

const (
	GitStatusUnknown GitStatus = iota
	GitStatusClean
	GitStatusModified
	GitStatusStaged
	GitStatusUntracked
	GitStatusDeleted
	GitStatusRenamed
	GitStatusIgnored
	GitStatusConflicted
)

var gitStatusNames = map[string]GitStatus{
	"clean":      GitStatusClean,
	"modified":   GitStatusModified,
	"staged":     GitStatusStaged,
	"untracked":  GitStatusUntracked,
	"deleted":    GitStatusDeleted,
	"renamed":    GitStatusRenamed,
	"ignored":    GitStatusIgnored,
	"conflicted": GitStatusConflicted,
}

func (s GitStatus) String() string {
	for name, v := range gitStatusNames {
		if v == s {
			return name
		}
	}
	return "unknown"
}

// ParseGitStatus matches name against the known status tags, case-insensitively.
func ParseGitStatus(name string) (GitStatus, bool) {
	s, ok := gitStatusNames[strings.ToLower(name)]
	return s, ok
}

// Constraint is a single parsed token: either a filter (extension, glob,
// path segment, file type, git status, or a negation of one of those) or
// a fuzzy-text fragment (Text / Parts), represented as a closed tagged
// union since Go has no sum types.
type Constraint struct {
	Kind   Kind
	Value  string    // Extension, Glob, PathSegment, FileType, Text
	Parts  []string  // Parts only
	Status GitStatus // GitStatus only
	Inner  *Constraint // Not only
}

func textConstraint(s string) Constraint   { return Constraint{Kind: KindText, Value: s} }
func partsConstraint(p []string) Constraint { return Constraint{Kind: KindParts, Parts: p} }
func notConstraint(inner Constraint) Constraint {
	c := inner
	return Constraint{Kind: KindNot, Inner: &c}
}

// MarshalJSON encodes a Constraint as a tagged {"type": "...", ...} object
// so the boundary layer can round-trip it without a Go-side schema.
func (c Constraint) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": c.Kind.String()}
	switch c.Kind {
	case KindText, KindExtension, KindGlob, KindPathSegment, KindFileType:
		m["value"] = c.Value
	case KindParts:
		m["parts"] = c.Parts
	case KindGitStatus:
		m["status"] = c.Status.String()
	case KindNot:
		if c.Inner != nil {
			inner, err := c.Inner.MarshalJSON()
			if err != nil {
				return nil, err
			}
			var raw json.RawMessage = inner
			m["inner"] = raw
		}
	}
	return json.Marshal(m)
}

// Location is a detached :LINE[:COL] suffix from the final token of a query.
type Location struct {
	Line int
	Col  int // 0 when unspecified
}

// FuzzyTerm is the non-constraint portion of a parsed query.
type FuzzyTerm struct {
	Kind  Kind // KindEmpty, KindText, or KindParts
	Text  string
	Parts []string
}

// ParsedQuery is the result of Parse: a fuzzy term plus an ordered list
// of constraints, and an optional detached location suffix.
type ParsedQuery struct {
	FuzzyTerm   FuzzyTerm
	Constraints []Constraint
	Location    *Location
}

// ParserConfig toggles which constraint productions are recognized. A
// disabled production falls through to plain fuzzy text instead of
// failing the parse, so e.g. grep mode (which disables Extension and
// Glob, per convention that filtering belongs to the picker) can still
// search for a literal "*.rs" string.
type ParserConfig struct {
	Extension   bool
	Glob        bool
	PathSegment bool
	FileType    bool
	GitStatus   bool
	Negation    bool
}

// DefaultConfig enables every production, matching the file picker.
func DefaultConfig() ParserConfig {
	return ParserConfig{
		Extension:   true,
		Glob:        true,
		PathSegment: true,
		FileType:    true,
		GitStatus:   true,
		Negation:    true,
	}
}

// GrepConfig enables only the productions that make sense when searching
// file contents: path-based filters, but not *.ext/glob (those would
// shadow the grep pattern itself for the common "*.rs" search string).
func GrepConfig() ParserConfig {
	return ParserConfig{
		PathSegment: true,
		FileType:    true,
		GitStatus:   true,
		Negation:    true,
	}
}

// InvalidConstraintError is returned when a status:<name> token names an
// unrecognized git status tag.
type InvalidConstraintError struct {
	Token string
}

func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("query: invalid constraint %q", e.Token)
}

var locationSuffix = func() func(string) (name string, loc *Location, ok bool) {
	return func(tok string) (string, *Location, bool) {
		parts := strings.Split(tok, ":")
		if len(parts) < 2 {
			return tok, nil, false
		}

		// NAME:LINE:COL — try the last two segments first, since a LINE
		// segment on its own is also a valid integer and would otherwise
		// shadow the COL case.
		if len(parts) >= 3 {
			line, errLine := strconv.Atoi(parts[len(parts)-2])
			col, errCol := strconv.Atoi(parts[len(parts)-1])
			if errLine == nil && errCol == nil {
				name := strings.Join(parts[:len(parts)-2], ":")
				if name != "" {
					return name, &Location{Line: line, Col: col}, true
				}
			}
		}

		// NAME:LINE
		if line, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			name := strings.Join(parts[:len(parts)-1], ":")
			if name != "" {
				return name, &Location{Line: line}, true
			}
		}

		return tok, nil, false
	}
}()

// Parse tokenizes raw on whitespace and classifies each token according
// to cfg. Returns InvalidConstraintError if a status:<name> token names
// an unknown status tag.
func Parse(raw string, cfg ParserConfig) (ParsedQuery, error) {
	var loc *Location

	fields := strings.Fields(raw)
	if n := len(fields); n > 0 {
		last := fields[n-1]
		// Only a location suffix if the name portion isn't itself a bare
		// number (avoid misreading "42:7" with no name as a locator).
		if name, l, ok := locationSuffix(last); ok && name != "" {
			if _, err := strconv.Atoi(name); err != nil {
				fields[n-1] = name
				loc = l
			}
		}
	}

	var constraints []Constraint
	var textParts []string

	for _, tok := range fields {
		negated := false
		body := tok
		if cfg.Negation && strings.HasPrefix(tok, "!") && len(tok) > 1 {
			negated = true
			body = tok[1:]
		}

		c, isText, err := classify(body, cfg)
		if err != nil {
			return ParsedQuery{}, err
		}

		if negated {
			constraints = append(constraints, notConstraint(c))
			continue
		}

		if isText {
			textParts = append(textParts, c.Value)
			continue
		}
		constraints = append(constraints, c)
	}

	term := FuzzyTerm{Kind: KindEmpty}
	switch len(textParts) {
	case 0:
		// stays Empty
	case 1:
		term = FuzzyTerm{Kind: KindText, Text: textParts[0]}
	default:
		term = FuzzyTerm{Kind: KindParts, Parts: textParts}
	}

	return ParsedQuery{FuzzyTerm: term, Constraints: constraints, Location: loc}, nil
}

// classify returns the Constraint for a single (already de-negated) token,
// and whether it is plain fuzzy text rather than a structural constraint.
func classify(tok string, cfg ParserConfig) (Constraint, bool, error) {
	switch {
	case cfg.Extension && strings.HasPrefix(tok, "*.") && len(tok) > 2 && !strings.ContainsAny(tok[2:], "*/"):
		return Constraint{Kind: KindExtension, Value: tok[2:]}, false, nil

	case cfg.Glob && strings.ContainsAny(tok, "*?[") :
		return Constraint{Kind: KindGlob, Value: tok}, false, nil

	case cfg.PathSegment && strings.HasPrefix(tok, "/") && strings.HasSuffix(tok, "/") && len(tok) > 2:
		return Constraint{Kind: KindPathSegment, Value: tok[1 : len(tok)-1]}, false, nil

	case cfg.FileType && strings.HasPrefix(tok, "type:") && len(tok) > len("type:"):
		return Constraint{Kind: KindFileType, Value: strings.ToLower(tok[len("type:"):])}, false, nil

	case cfg.GitStatus && strings.HasPrefix(tok, "status:") && len(tok) > len("status:"):
		name := tok[len("status:"):]
		s, ok := ParseGitStatus(name)
		if !ok {
			return Constraint{}, false, &InvalidConstraintError{Token: tok}
		}
		return Constraint{Kind: KindGitStatus, Status: s}, false, nil

	default:
		return textConstraint(tok), true, nil
	}
}
