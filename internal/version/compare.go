package version

import (
	"strconv"
	"strings"
)

// Ordering is the three-way result of comparing two records.
type Ordering int

const (
	Lesser  Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// String returns the ordering name.
func (o Ordering) String() string {
	switch o {
	case Lesser:
		return "lesser"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// Compare orders two records. Records of different schemes are permitted and
// fall back to byte-wise comparison of raw: some strategies cannot guarantee
// a consistent scheme across runs, so a mismatch is never an error.
func Compare(a, b Record) Ordering {
	if a.Scheme != b.Scheme {
		return fromCmp(strings.Compare(a.Raw, b.Raw))
	}

	switch a.Scheme {
	case SchemeSemantic:
		return compareSemantic(a.Normalized(), b.Normalized())
	case SchemeNumericTriplet, SchemeNumericQuad:
		return fromCmp(compareSegments(a.Normalized(), b.Normalized()))
	default:
		return fromCmp(strings.Compare(a.Normalized(), b.Normalized()))
	}
}

// IsNewer reports whether candidate is strictly newer than current.
func IsNewer(candidate, current Record) bool {
	return Compare(candidate, current) == Greater
}

// compareSemantic orders two normalized semantic versions. The numeric prefix
// is compared segment-wise first; on a tie, a release outranks any prerelease
// of the same prefix, and prerelease tags order by a fixed priority list
// (alpha < beta < rc < anything unrecognized) with lexicographic comparison
// breaking ties inside a class.
func compareSemantic(a, b string) Ordering {
	aNum, aTag := splitPrerelease(a)
	bNum, bTag := splitPrerelease(b)

	if c := compareSegments(aNum, bNum); c != 0 {
		return fromCmp(c)
	}

	switch {
	case aTag == "" && bTag == "":
		return Equal
	case aTag == "":
		return Greater
	case bTag == "":
		return Lesser
	}

	aPri := tagPriority(aTag)
	bPri := tagPriority(bTag)
	if aPri != bPri {
		return fromCmp(aPri - bPri)
	}
	return fromCmp(strings.Compare(aTag, bTag))
}

// splitPrerelease splits "1.2.0-rc.1" into ("1.2.0", "rc.1").
func splitPrerelease(v string) (numeric, tag string) {
	if i := strings.IndexByte(v, '-'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return v, ""
}

// tagPriority classifies a prerelease tag by its leading alphabetic word.
func tagPriority(tag string) int {
	word := strings.ToLower(tag)
	for i := 0; i < len(word); i++ {
		c := word[i]
		if c < 'a' || c > 'z' {
			word = word[:i]
			break
		}
	}

	switch word {
	case "alpha":
		return 0
	case "beta":
		return 1
	case "rc":
		return 2
	default:
		return 3
	}
}

// compareSegments compares dot-separated integer segments pairwise, left to
// right, short-circuiting on the first inequality. Missing trailing segments
// are treated as zero, so "1.2" equals "1.2.0".
func compareSegments(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		av := segmentAt(as, i)
		bv := segmentAt(bs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func segmentAt(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	// Validation happened at construction; junk decays to zero here.
	n, _ := strconv.Atoi(segments[i])
	return n
}

func fromCmp(c int) Ordering {
	switch {
	case c < 0:
		return Lesser
	case c > 0:
		return Greater
	default:
		return Equal
	}
}
