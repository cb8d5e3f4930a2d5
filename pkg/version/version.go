package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is an immutable Cassandra release version (major.minor.patch[-qualifier]).
// Versions are totally ordered; a qualified version sorts before its release,
// so 4.0-beta4 < 4.0.0.
type Version struct {
	raw string
	sv  *semver.Version
}

// Parse parses a Cassandra version string such as "3.11.4", "4.0" or "4.0-beta4".
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("empty version")
	}

	sv, err := semver.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
	}

	return Version{raw: raw, sv: sv}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component.
func (v Version) Major() int {
	if v.sv == nil {
		return 0
	}
	return int(v.sv.Major())
}

// Minor returns the minor component.
func (v Version) Minor() int {
	if v.sv == nil {
		return 0
	}
	return int(v.sv.Minor())
}

// Patch returns the patch component.
func (v Version) Patch() int {
	if v.sv == nil {
		return 0
	}
	return int(v.sv.Patch())
}

// Qualifier returns the pre-release qualifier, e.g. "beta4", or "".
func (v Version) Qualifier() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.Prerelease()
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.sv == nil
}

// Compare returns -1, 0 or +1 depending on whether v is less than, equal to
// or greater than o. The zero Version sorts before everything else.
func (v Version) Compare(o Version) int {
	switch {
	case v.sv == nil && o.sv == nil:
		return 0
	case v.sv == nil:
		return -1
	case o.sv == nil:
		return 1
	}
	return v.sv.Compare(o.sv)
}

// LessThan reports whether v < o.
func (v Version) LessThan(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v == o.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// AtLeast reports whether v >= major.minor.patch, ignoring any qualifier on v.
// A 4.0-beta4 build therefore counts as 4.0 for feature checks.
func (v Version) AtLeast(major, minor, patch int) bool {
	if v.sv == nil {
		return false
	}
	core := [3]int{v.Major(), v.Minor(), v.Patch()}
	want := [3]int{major, minor, patch}
	for i := range core {
		if core[i] != want[i] {
			return core[i] > want[i]
		}
	}
	return true
}

// String returns the version as originally written.
func (v Version) String() string {
	return v.raw
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
