package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must not be empty: %q %q %q", v, c, d)
	}
	if Version() != v {
		t.Fatalf("Version() = %q, want %q", Version(), v)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"lessonbook", "version=" + version, "commit=" + commit, "date=" + date} {
		if !strings.Contains(s, part) {
			t.Fatalf("String() = %q, missing %q", s, part)
		}
	}
}
