package kvdomain

import "testing"

func TestCompatibilityCheck(t *testing.T) {
	cases := []struct {
		name   string
		onDisk VersionStamp
		code   VersionStamp
		want   bool
	}{
		{"same major always compatible", VersionStamp{1, 2, 0}, VersionStamp{1, 9, 0}, true},
		{"one major behind is compatible", VersionStamp{4, 0, 0}, VersionStamp{5, 0, 0}, true},
		{"two majors behind is incompatible", VersionStamp{3, 0, 0}, VersionStamp{5, 0, 0}, false},
		{"downgrade is incompatible", VersionStamp{5, 0, 0}, VersionStamp{4, 0, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompatibilityCheck(tc.onDisk, tc.code); got != tc.want {
				t.Fatalf("CompatibilityCheck(%v, %v) = %v, want %v", tc.onDisk, tc.code, got, tc.want)
			}
		})
	}
}

func TestCompatibilityCheckTwoMajorsBehindIsIncompatible(t *testing.T) {
	onDisk := VersionStamp{Major: 3, Minor: 0, Patch: 0}
	code := VersionStamp{Major: 5, Minor: 0, Patch: 0}
	if CompatibilityCheck(onDisk, code) {
		t.Fatal("3.0 -> 5.0 must be incompatible")
	}
}
