package version

import (
	"strings"
	"testing"
)

func TestGetFullVersionString(t *testing.T) {
	s := GetFullVersionString()
	if !strings.Contains(s, Version) {
		t.Errorf("full version string %q missing version %q", s, Version)
	}
	if !strings.Contains(s, BuildTime) {
		t.Errorf("full version string %q missing build time %q", s, BuildTime)
	}
	if GetVersionString() != Version {
		t.Errorf("GetVersionString() = %q, want %q", GetVersionString(), Version)
	}
}
