package version

import (
	"log/slog"
	"testing"
)

// setBuildInfo overrides the ldflags variables for one test.
func setBuildInfo(t *testing.T, version, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = version, commit, built
}

func TestString(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		setBuildInfo(t, "dev", "unknown", "unknown")
		if got, want := String(), "dev (unknown) built unknown"; got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		setBuildInfo(t, "1.2.3", "abc1234", "2026-01-02T03:04:05Z")
		if got, want := String(), "1.2.3 (abc1234) built 2026-01-02T03:04:05Z"; got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	})
}

func TestAttr(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc1234", "now")

	a := Attr()
	if a.Key != "build" {
		t.Errorf("Key = %q, want build", a.Key)
	}
	if a.Value.Kind() != slog.KindGroup {
		t.Fatalf("Kind = %v, want group", a.Value.Kind())
	}

	got := map[string]string{}
	for _, attr := range a.Value.Group() {
		got[attr.Key] = attr.Value.String()
	}
	want := map[string]string{"version": "1.2.3", "commit": "abc1234", "built": "now"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
