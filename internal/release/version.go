package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionRe matches MAJOR.MINOR.PATCH with optional prerelease and build
// metadata. A leading "v" is stripped before matching.
var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.\-]+))?(?:\+([0-9A-Za-z.\-]+))?$`)

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

// ParseVersion parses a semantic version string, accepting an optional
// leading "v".
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimPrefix(s, "v")
	m := versionRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Version{}, fmt.Errorf("invalid semantic version %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: m[4],
		Build:      m[5],
	}, nil
}

func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Tag returns the version formatted as a git tag name.
func (v Version) Tag() string {
	return "v" + v.String()
}

// Bump returns the next version for the given part. Prerelease and build
// metadata are dropped from the result.
func (v Version) Bump(part string) (Version, error) {
	switch part {
	case "patch":
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}, nil
	case "minor":
		return Version{Major: v.Major, Minor: v.Minor + 1}, nil
	case "major":
		return Version{Major: v.Major + 1}, nil
	default:
		return Version{}, fmt.Errorf("invalid bump part %q (want patch, minor or major)", part)
	}
}

// Compare orders versions: -1 if a < b, 0 if equal, 1 if a > b. A version
// without a prerelease ranks above one with a prerelease at the same
// numeric triple. Build metadata is ignored.
func Compare(a, b Version) int {
	if c := compareInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := compareInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := compareInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	switch {
	case a.Prerelease == b.Prerelease:
		return 0
	case a.Prerelease == "":
		return 1
	case b.Prerelease == "":
		return -1
	case a.Prerelease < b.Prerelease:
		return -1
	default:
		return 1
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
