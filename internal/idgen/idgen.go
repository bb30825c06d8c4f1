// Package idgen implements issue ID generation and resolution.
//
// IDs have the shape <prefix>-<suffix>: a workspace-constant lowercase prefix
// and a base-36 suffix whose width adapts as the ID space fills. Child issues
// append a 1-based dotted counter to the parent ID (br-a1b.1, br-a1b.1.2).
package idgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/braid-dev/braid/internal/errs"
)

const (
	// MinSuffixWidth is the starting width for generated suffixes.
	MinSuffixWidth = 3

	// MaxSuffixWidth bounds the adaptive growth.
	MaxSuffixWidth = 8

	// growthThreshold is the fill ratio at which the suffix widens.
	growthThreshold = 0.8
)

var (
	prefixRe = regexp.MustCompile(`^[a-z][a-z0-9]{0,9}$`)
	idRe     = regexp.MustCompile(`^[a-z][a-z0-9]{0,9}-[0-9a-z]+(\.[0-9]+)*$`)
)

// ValidatePrefix checks a workspace prefix against ^[a-z][a-z0-9]{0,9}$.
func ValidatePrefix(prefix string) error {
	if !prefixRe.MatchString(prefix) {
		return errs.New(errs.CodeInvalidPrefix,
			"prefix %q must be 1-10 lowercase alphanumerics starting with a letter", prefix)
	}
	return nil
}

// IsValidID reports whether id matches the canonical ID shape, including
// hierarchical child IDs.
func IsValidID(id string) bool {
	return idRe.MatchString(id)
}

// Normalize lowercases an ID and strips surrounding whitespace.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Split breaks an ID into prefix and suffix. The suffix keeps any dotted
// child segments.
func Split(id string) (prefix, suffix string, err error) {
	idx := strings.Index(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", errs.New(errs.CodeInvalidID, "malformed issue ID %q", id)
	}
	return id[:idx], id[idx+1:], nil
}

// Depth returns the hierarchy depth of an ID: 0 for top-level issues, 1 for
// their children, and so on. Depth is the count of dots in the suffix.
func Depth(id string) int {
	_, suffix, err := Split(id)
	if err != nil {
		return 0
	}
	return strings.Count(suffix, ".")
}

// ParentID returns the parent of a hierarchical ID, or "" for top-level IDs.
// The child segment must be purely numeric; a prefix containing dots does not
// make an ID hierarchical.
func ParentID(id string) string {
	lastDot := strings.LastIndex(id, ".")
	if lastDot == -1 {
		return ""
	}
	tail := id[lastDot+1:]
	if tail == "" {
		return ""
	}
	for _, c := range tail {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return id[:lastDot]
}

// ChildID formats the k-th child of parent.
func ChildID(parent string, k int) string {
	return fmt.Sprintf("%s.%d", parent, k)
}

// WidthForCount returns the suffix width to use for the next allocation given
// how many issues already carry the prefix. The width starts at
// MinSuffixWidth and increments whenever the count reaches 80% of 36^W; it
// never shrinks, so existing shorter IDs stay valid forever.
func WidthForCount(count int) int {
	width := MinSuffixWidth
	for width < MaxSuffixWidth {
		capacity := 1.0
		for i := 0; i < width; i++ {
			capacity *= 36
		}
		if float64(count) < capacity*growthThreshold {
			break
		}
		width++
	}
	return width
}

// FormatSuffix renders counter n as base-36 left-padded to width.
func FormatSuffix(n int64, width int) string {
	s := strconv.FormatInt(n, 36)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// Format assembles a full ID from prefix, counter, and width.
func Format(prefix string, n int64, width int) string {
	return prefix + "-" + FormatSuffix(n, width)
}

// MatchType classifies the outcome of resolving user input against the ID
// space, in order of preference.
type MatchType int

// Match type constants, ordered by preference.
const (
	MatchExact MatchType = iota
	MatchUniquePrefix
	MatchAmbiguous
	MatchNotFound
)

// Resolution is the result of resolving user input to an issue ID.
type Resolution struct {
	Input      string
	Match      MatchType
	ID         string   // Set for MatchExact and MatchUniquePrefix
	Candidates []string // Set for MatchAmbiguous
}

// Resolve matches input against the known IDs. Input may be a full ID, a bare
// suffix (the workspace prefix is applied), or a unique prefix of either.
// Matching is case-insensitive and ignores surrounding whitespace.
func Resolve(input, workspacePrefix string, known []string) Resolution {
	norm := Normalize(input)
	res := Resolution{Input: input, Match: MatchNotFound}
	if norm == "" {
		return res
	}

	// A bare suffix gets the workspace prefix applied before matching.
	withPrefix := norm
	if !strings.Contains(norm, "-") {
		withPrefix = workspacePrefix + "-" + norm
	}

	for _, id := range known {
		if id == norm || id == withPrefix {
			res.Match = MatchExact
			res.ID = id
			return res
		}
	}

	var candidates []string
	for _, id := range known {
		if strings.HasPrefix(id, norm) || strings.HasPrefix(id, withPrefix) {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 0:
		return res
	case 1:
		res.Match = MatchUniquePrefix
		res.ID = candidates[0]
	default:
		res.Match = MatchAmbiguous
		res.Candidates = candidates
	}
	return res
}
