// Package version orders and matches the version strings found in module metadata.
//
// Three version dialects are understood, tried in order:
//
//   - Go-style semantic versions with a "v" prefix ("v1.2.3"), compared with
//     [golang.org/x/mod/semver].
//   - Semantic-ish versions without the prefix ("1.0", "2.1.0-SNAPSHOT"), compared with
//     [github.com/Masterminds/semver/v3], which coerces missing minor and patch components.
//   - Anything else, compared as dot/hyphen separated identifiers where digits-only identifiers
//     compare numerically and sort before alphanumeric identifiers.
package version

import (
	"cmp"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
	"golang.org/x/mod/semver"
)

// Latest is the dynamic version that accepts any version, preferring the newest.
const Latest = "latest"

// IsDynamic reports whether v is a selector that can match more than one version: [Latest], a
// prefix range ("1.+"), or a constraint expression (">=1.0 <2.0", "^1.2").
func IsDynamic(v string) bool {
	if v == Latest || strings.HasSuffix(v, "+") {
		return true
	}
	return strings.ContainsAny(v, "<>=~^*, |")
}

// Accepts reports whether the concrete version v satisfies the selector sel.
func Accepts(sel, v string) bool {
	switch {
	case sel == Latest:
		return true
	case strings.HasSuffix(sel, "+"):
		return strings.HasPrefix(v, strings.TrimSuffix(sel, "+"))
	case IsDynamic(sel):
		c, err := mm.NewConstraint(sel)
		if err != nil {
			return false
		}
		mv, err := mm.NewVersion(v)
		if err != nil {
			return false
		}
		return c.Check(mv)
	default:
		return Compare(sel, v) == 0
	}
}

// Compare returns -1, 0, or +1 depending on whether a is older than, equal to, or newer than b.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	if semver.IsValid(a) && semver.IsValid(b) {
		return semver.Compare(a, b)
	}
	if ma, err := mm.StrictNewVersion(a); err == nil {
		if mb, err := mm.StrictNewVersion(b); err == nil {
			return ma.Compare(mb)
		}
	}
	if ma, err := mm.NewVersion(a); err == nil {
		if mb, err := mm.NewVersion(b); err == nil {
			if c := ma.Compare(mb); c != 0 {
				return c
			}
		}
	}
	return compareIdentifiers(a, b)
}

func compareIdentifiers(a, b string) int {
	split := func(r rune) bool { return r == '.' || r == '-' || r == '_' }
	as, bs := strings.FieldsFunc(a, split), strings.FieldsFunc(b, split)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(len(as), len(bs)); c != 0 {
		return c
	}
	// Equal by identifiers (e.g., "1.0" vs "1-0"); fall back to a total order.
	return strings.Compare(a, b)
}

func compareIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(an, bn)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
