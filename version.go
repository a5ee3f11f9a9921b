package juliaruntime

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// Binding layer version. Bumped on releases of this module.
const (
	bindingMajor = 0
	bindingMinor = 3
	bindingPatch = 0
)

// Version describes either the binding layer or the embedded runtime.
type Version struct {
	Name    string
	Major   int64
	Minor   int64
	Patch   int64
	Release bool
}

// BindingVersion returns the version of this binding layer.
func BindingVersion() Version {
	return Version{
		Name:  "julia-runtime",
		Major: bindingMajor,
		Minor: bindingMinor,
		Patch: bindingPatch,
	}
}

// String formats the version as "name major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%s %d.%d.%d", v.Name, v.Major, v.Minor, v.Patch)
}

// Semver returns the version as a comparable semantic version.
func (v Version) Semver() *semver.Version {
	return &semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// AtLeast reports whether v is the same or newer than other.
func (v Version) AtLeast(other Version) bool {
	return !v.Semver().LessThan(*other.Semver())
}
