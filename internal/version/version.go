// Package version defines the version record model shared by every probe,
// extractor, and cache record, plus scheme-aware comparison.
//
// A Record carries the raw version string exactly as the source reported it,
// the comparison scheme the producer chose for it, and a provenance label for
// diagnostics. Normalization (prefix stripping) happens at construction so
// "v1.2.3" and "1.2.3" compare equal without the comparator guessing.
package version

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scheme identifies which comparison rule applies to a record.
// It is chosen by the producer (strategy or extractor), never guessed.
type Scheme string

const (
	// SchemeSemantic is dot-separated numeric segments with an optional
	// -<tag> prerelease suffix (e.g. "1.4.0-beta.2").
	SchemeSemantic Scheme = "semantic"
	// SchemeNumericTriplet is up to three dot-separated integers.
	SchemeNumericTriplet Scheme = "numeric-triplet"
	// SchemeNumericQuad is up to four dot-separated integers, common for
	// Windows-style product versions (e.g. "124.0.6367.91").
	SchemeNumericQuad Scheme = "numeric-quad"
	// SchemeLexicographic is byte-wise string comparison, for sources with
	// no structured versioning (date stamps, build tags).
	SchemeLexicographic Scheme = "lexicographic"
)

// ParseScheme validates a scheme name from configuration.
// The empty string defaults to semantic.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.TrimSpace(s)) {
	case "":
		return SchemeSemantic, nil
	case SchemeSemantic:
		return SchemeSemantic, nil
	case SchemeNumericTriplet:
		return SchemeNumericTriplet, nil
	case SchemeNumericQuad:
		return SchemeNumericQuad, nil
	case SchemeLexicographic:
		return SchemeLexicographic, nil
	default:
		return "", fmt.Errorf("unknown version scheme: %q", s)
	}
}

// semanticRe matches a normalized semantic version: 1-3 numeric segments and
// an optional prerelease tag after the first hyphen.
var semanticRe = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z][0-9A-Za-z.\-]*))?$`)

// Record is the comparable unit produced by any probe or extraction.
type Record struct {
	Raw        string `json:"raw"`
	Scheme     Scheme `json:"scheme"`
	Provenance string `json:"provenance,omitempty"`

	// norm is the normalized form computed by New. Records built as struct
	// literals fall back to on-demand normalization in Normalized.
	norm string
}

// New builds a Record, normalizing and validating raw against the scheme.
// An empty raw string is a hard error: an unparseable version must fail at
// the producer, never become a valid record.
func New(raw string, scheme Scheme, provenance string) (Record, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Record{}, fmt.Errorf("version raw string is empty")
	}

	norm := normalize(raw, scheme)
	if err := validate(norm, scheme); err != nil {
		return Record{}, fmt.Errorf("version %q: %w", raw, err)
	}

	return Record{
		Raw:        raw,
		Scheme:     scheme,
		Provenance: provenance,
		norm:       norm,
	}, nil
}

// Normalized returns the scheme-normalized form of the raw string.
func (r Record) Normalized() string {
	if r.norm != "" {
		return r.norm
	}
	return normalize(strings.TrimSpace(r.Raw), r.Scheme)
}

// IsZero reports whether the record is the zero value (no version known).
func (r Record) IsZero() bool {
	return r.Raw == ""
}

// String returns the raw version string for display.
func (r Record) String() string {
	return r.Raw
}

// UnmarshalJSON decodes a persisted record and re-runs construction so the
// normalized form is restored and stale stores with invalid records are
// rejected as structural corruption.
func (r *Record) UnmarshalJSON(data []byte) error {
	var aux struct {
		Raw        string `json:"raw"`
		Scheme     Scheme `json:"scheme"`
		Provenance string `json:"provenance"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	rec, err := New(aux.Raw, aux.Scheme, aux.Provenance)
	if err != nil {
		return err
	}

	*r = rec
	return nil
}

// normalize applies scheme-specific normalization. Structured schemes strip
// a single leading "v"/"V" prefix; lexicographic compares bytes as-is.
func normalize(raw string, scheme Scheme) string {
	switch scheme {
	case SchemeSemantic, SchemeNumericTriplet, SchemeNumericQuad:
		if len(raw) > 1 && (raw[0] == 'v' || raw[0] == 'V') {
			return raw[1:]
		}
		return raw
	default:
		return raw
	}
}

// validate checks that the normalized form is well-formed for the scheme.
func validate(norm string, scheme Scheme) error {
	switch scheme {
	case SchemeSemantic:
		if !semanticRe.MatchString(norm) {
			return fmt.Errorf("not a semantic version")
		}
		return nil
	case SchemeNumericTriplet:
		return validateNumeric(norm, 3)
	case SchemeNumericQuad:
		return validateNumeric(norm, 4)
	case SchemeLexicographic:
		return nil
	default:
		return fmt.Errorf("unknown version scheme: %q", scheme)
	}
}

// validateNumeric checks for 1..maxSegments dot-separated integers.
func validateNumeric(norm string, maxSegments int) error {
	segments := strings.Split(norm, ".")
	if len(segments) > maxSegments {
		return fmt.Errorf("too many segments: %d (max %d)", len(segments), maxSegments)
	}
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err != nil {
			return fmt.Errorf("non-numeric segment %q", seg)
		}
	}
	return nil
}
