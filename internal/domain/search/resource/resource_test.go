package resource

import (
	"slices"
	"strings"
	"testing"
)

func mustNew(t *testing.T, id string, bt BackendType, server string) Descriptor {
	t.Helper()
	d, err := New(id, bt, server)
	if err != nil {
		t.Fatalf("New(%q): %v", id, err)
	}
	return d
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		bt      BackendType
		wantErr string
	}{
		{"ok", "ftOrder", Typed, ""},
		{"empty id", "", Typed, "required"},
		{"comma in id", "a,b", Typed, "separator"},
		{"bad type", "x", "bogus", "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.bt, "")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateList_ViewBeforeLegacyBeforeOthers(t *testing.T) {
	view := mustNew(t, "X", ArchiveView, "s1")
	legacy := mustNew(t, "L", ArchiveLegacy, "s1")
	typed := mustNew(t, "ftOrder", Typed, "")

	if err := ValidateList([]Descriptor{view, legacy, typed}); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}
	if err := ValidateList([]Descriptor{legacy, view}); err == nil {
		t.Fatal("expected [ArchiveLegacy, ArchiveView] to be rejected")
	}
	if err := ValidateList([]Descriptor{typed, view}); err == nil {
		t.Fatal("expected [Typed, ArchiveView] to be rejected")
	}
	if err := ValidateList([]Descriptor{typed, mustNew(t, "fs", FederatedStore, "remote")}); err != nil {
		t.Fatalf("non-archive types may mix freely: %v", err)
	}
}

func TestValidateList_DuplicatesAndEmpty(t *testing.T) {
	a := mustNew(t, "a", Typed, "")
	if err := ValidateList(nil); err == nil {
		t.Error("expected error for empty list")
	}
	if err := ValidateList([]Descriptor{a, a}); err == nil {
		t.Error("expected error for duplicate ids")
	}
}

func TestArchiveServers(t *testing.T) {
	list := []Descriptor{
		mustNew(t, "v1", ArchiveView, "s1"),
		mustNew(t, "v2", ArchiveView, "s2"),
		mustNew(t, "l1", ArchiveLegacy, "s1"),
		mustNew(t, "t", Typed, "s3"),
	}
	got := ArchiveServers(list)
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("ArchiveServers = %v, want [s1 s2]", got)
	}
	if !HasArchive(list) {
		t.Error("HasArchive = false")
	}
	if HasArchive(list[3:]) {
		t.Error("HasArchive(typed only) = true")
	}

	mixed := []Descriptor{
		mustNew(t, "v0", ArchiveView, ""),
		mustNew(t, "l1", ArchiveLegacy, "s1"),
		mustNew(t, "v3", ArchiveView, ""),
	}
	if got := ArchiveServers(mixed); !slices.Equal(got, []string{LocalServer, "s1"}) {
		t.Errorf("ArchiveServers(mixed) = %v, want [local s1]", got)
	}
}

func TestDescriptor_String(t *testing.T) {
	if s := mustNew(t, "X", ArchiveView, "").String(); s != "archive_view!X" {
		t.Errorf("String() = %q", s)
	}
	if s := mustNew(t, "X", ArchiveView, "srv").String(); s != "archive_view!X@srv" {
		t.Errorf("String() = %q", s)
	}
}
