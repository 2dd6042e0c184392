package revision

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BumpKind selects which component of a version to increment.
type BumpKind string

const (
	// BumpPatch increments the patch component only.
	BumpPatch BumpKind = "patch"
	// BumpMinor increments the minor component and resets patch to 0.
	BumpMinor BumpKind = "minor"
	// BumpMajor increments the major component and resets minor and patch to 0.
	BumpMajor BumpKind = "major"
)

// Valid reports whether the bump kind is one of patch, minor, major.
func (b BumpKind) Valid() bool {
	switch b {
	case BumpPatch, BumpMinor, BumpMajor:
		return true
	}
	return false
}

// Version is a three-part program version. It is stored and compared as
// three integers, never as a formatted string, so "1.10.0" orders after
// "1.2.0" as expected.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Initial is the version assigned to the first revision of a program,
// regardless of the requested bump kind.
var Initial = Version{Major: 1, Minor: 0, Patch: 0}

// Compare returns -1, 0, or 1 ordering v against other lexicographically
// on (major, minor, patch).
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	return cmpInt(v.Patch, other.Patch)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Next computes the successor version for the given bump kind.
func (v Version) Next(bump BumpKind) (Version, error) {
	switch bump {
	case BumpPatch:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}, nil
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1, Patch: 0}, nil
	case BumpMajor:
		return Version{Major: v.Major + 1, Minor: 0, Patch: 0}, nil
	default:
		return Version{}, fmt.Errorf("unknown bump kind: %q", bump)
	}
}

// String formats the version for display. The formatted form is never used
// for ordering or storage.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a "major.minor.patch" string as produced by String.
// Used at the CLI and HTTP boundaries only.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, errors.New("version must have the form major.minor.patch")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version component %q", p)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
