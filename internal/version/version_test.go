package version

import (
	"testing"
)

func TestInfo_DevDefaults(t *testing.T) {
	oldVersion := Version
	oldCommit := Commit
	oldDate := Date
	t.Cleanup(func() {
		Version = oldVersion
		Commit = oldCommit
		Date = oldDate
	})

	Version = "dev"
	Commit = "none"
	got := Info()

	if got.Version != "dev" || got.Commit != "none" {
		t.Fatalf("unexpected build info: %+v", got)
	}
}

func TestInfo_VersionOverride(t *testing.T) {
	oldVersion := Version
	t.Cleanup(func() { Version = oldVersion })

	Version = "9.9.9"
	got := Info()
	if got.Version != "9.9.9" {
		t.Fatalf("Version mismatch: got=%q want=%q", got.Version, "9.9.9")
	}
}
