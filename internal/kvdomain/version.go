package kvdomain

import "fmt"

// VersionStampKey is the fixed key name under which the version stamp is
// stored in the non-replicated VersionDatabase.
const VersionStampKey = "kvgrid.version-stamp"

// VersionStamp is the persisted, non-replicated record checked at
// environment open.
type VersionStamp struct {
	Major int
	Minor int
	Patch int
}

func (v VersionStamp) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, 1 for v relative to other, ordering by
// Major, then Minor, then Patch.
func (v VersionStamp) Compare(other VersionStamp) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// CurrentVersion is the version stamp this build writes on first open or
// successful upgrade.
var CurrentVersion = VersionStamp{Major: 1, Minor: 0, Patch: 0}

// CompatibilityCheck decides whether an on-disk stamp may be opened by the
// running code's CurrentVersion. Same major version is upgrade-compatible
// in either minor/patch direction; a higher on-disk major version is
// never compatible (downgrade is never allowed); a lower on-disk major
// version is compatible only one major version back, matching a typical
// one-step upgrade policy.
func CompatibilityCheck(onDisk, code VersionStamp) bool {
	if onDisk.Major == code.Major {
		return true
	}
	return code.Major-onDisk.Major == 1
}
