// Package pathcodec converts between segment chains and materialized path strings.
// Every function here is pure; nothing touches storage.
package pathcodec

import (
	"fmt"
	"strings"
)

// Delimiter separates segments inside a materialized path. It is never
// permitted inside a segment.
const Delimiter = "/"

// InvalidSegmentError reports a segment that cannot be encoded.
type InvalidSegmentError struct {
	Segment string
	Reason  string
}

func (e *InvalidSegmentError) Error() string {
	return fmt.Sprintf("invalid segment %q: %s", e.Segment, e.Reason)
}

// MalformedPathError reports a stored path that does not decode cleanly,
// which indicates corruption.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path %q: %s", e.Path, e.Reason)
}

// Encode joins the ancestor segments and the node's own segment into a path.
func Encode(ancestorSegments []string, ownSegment string) (string, error) {
	for _, seg := range ancestorSegments {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}
	if err := checkSegment(ownSegment); err != nil {
		return "", err
	}

	if len(ancestorSegments) == 0 {
		return ownSegment, nil
	}
	return strings.Join(ancestorSegments, Delimiter) + Delimiter + ownSegment, nil
}

// Child appends a segment to an existing path. An empty parent path yields a root path.
func Child(parentPath, ownSegment string) (string, error) {
	if err := checkSegment(ownSegment); err != nil {
		return "", err
	}
	if parentPath == "" {
		return ownSegment, nil
	}
	return parentPath + Delimiter + ownSegment, nil
}

// Decode splits a path into its segments.
func Decode(path string) ([]string, error) {
	if path == "" {
		return nil, &MalformedPathError{Path: path, Reason: "empty path"}
	}

	segments := strings.Split(path, Delimiter)
	for i, seg := range segments {
		if seg == "" {
			return nil, &MalformedPathError{
				Path:   path,
				Reason: fmt.Sprintf("empty segment at position %d", i),
			}
		}
	}
	return segments, nil
}

// IsDescendantPath reports whether candidate lies strictly below ancestor.
func IsDescendantPath(candidatePath, ancestorPath string) bool {
	if ancestorPath == "" {
		return false
	}
	return strings.HasPrefix(candidatePath, ancestorPath+Delimiter)
}

// DepthOf returns the segment count minus one. The empty path has depth -1.
func DepthOf(path string) int {
	if path == "" {
		return -1
	}
	return strings.Count(path, Delimiter)
}

// LastSegment returns the node's own segment.
func LastSegment(path string) string {
	if i := strings.LastIndex(path, Delimiter); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Parent returns the parent path, or "" for a root path.
func Parent(path string) string {
	if i := strings.LastIndex(path, Delimiter); i >= 0 {
		return path[:i]
	}
	return ""
}

// Prefixes returns every ancestor path of path, root first, ending with path itself.
func Prefixes(path string) ([]string, error) {
	segments, err := Decode(path)
	if err != nil {
		return nil, err
	}

	prefixes := make([]string, len(segments))
	for i := range segments {
		prefixes[i] = strings.Join(segments[:i+1], Delimiter)
	}
	return prefixes, nil
}

// Rebase replaces oldPrefix at the start of path with newPrefix. path must be
// oldPrefix itself or one of its descendants.
func Rebase(path, oldPrefix, newPrefix string) (string, error) {
	if path == oldPrefix {
		return newPrefix, nil
	}
	if !IsDescendantPath(path, oldPrefix) {
		return "", &MalformedPathError{
			Path:   path,
			Reason: fmt.Sprintf("not within subtree %q", oldPrefix),
		}
	}
	return newPrefix + path[len(oldPrefix):], nil
}

// CommonPrefix returns the longest shared segment prefix of two paths, or ""
// when they share no root.
func CommonPrefix(a, b string) (string, error) {
	segsA, err := Decode(a)
	if err != nil {
		return "", err
	}
	segsB, err := Decode(b)
	if err != nil {
		return "", err
	}

	n := 0
	for n < len(segsA) && n < len(segsB) && segsA[n] == segsB[n] {
		n++
	}
	return strings.Join(segsA[:n], Delimiter), nil
}

// Overlaps reports whether two subtree scopes intersect. The empty scope
// stands for the whole forest.
func Overlaps(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return a == b || IsDescendantPath(a, b) || IsDescendantPath(b, a)
}

// Compare orders paths segment by segment, which is pre-order tree traversal.
// Plain string comparison is not, because '-' sorts before the delimiter.
func Compare(a, b string) int {
	for {
		segA, restA, moreA := strings.Cut(a, Delimiter)
		segB, restB, moreB := strings.Cut(b, Delimiter)
		if c := strings.Compare(segA, segB); c != 0 {
			return c
		}
		switch {
		case !moreA && !moreB:
			return 0
		case !moreA:
			return -1
		case !moreB:
			return 1
		}
		a, b = restA, restB
	}
}

func checkSegment(seg string) error {
	if seg == "" {
		return &InvalidSegmentError{Segment: seg, Reason: "segment is empty"}
	}
	if strings.Contains(seg, Delimiter) {
		return &InvalidSegmentError{Segment: seg, Reason: "segment contains the path delimiter"}
	}
	return nil
}
