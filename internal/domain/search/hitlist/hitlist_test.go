package hitlist

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
)

type mockCatalog struct {
	fields   map[string][]field.Descriptor
	hitlists map[string]map[string][]string
}

func (m *mockCatalog) Fields(resourceID string) ([]field.Descriptor, bool) {
	f, ok := m.fields[resourceID]
	return f, ok
}

func (m *mockCatalog) Hitlist(resourceID, name string) ([]string, bool) {
	h, ok := m.hitlists[resourceID][name]
	return h, ok
}

func newCatalog() *mockCatalog {
	return &mockCatalog{
		fields: map[string][]field.Descriptor{
			"X": {
				field.Reconstruct("invoice_no", "Invoice", field.String, true),
				field.Reconstruct("amount", "Amount", field.Decimal, false),
			},
			"ftOrder": {
				field.Reconstruct("order_no", "Order", field.String, true),
				field.Reconstruct("amount", "Order amount", field.Decimal, true),
			},
		},
		hitlists: map[string]map[string][]string{
			"X":       {DefaultName: {"invoice_no", "amount"}},
			"ftOrder": {DefaultName: {"order_no"}, "Compact": {"order_no", "title"}},
		},
	}
}

func res(t *testing.T, id string, bt resource.BackendType, server string) resource.Descriptor {
	t.Helper()
	d, err := resource.New(id, bt, server)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolve_FirstResourceWithDefaultHitlistWins(t *testing.T) {
	resources := []resource.Descriptor{
		res(t, "X", resource.ArchiveView, "s1"),
		res(t, "ftOrder", resource.Typed, ""),
	}
	cols, warn, err := Resolve(resources, AutoSpec(), newCatalog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !warn.IsOK() {
		t.Errorf("unexpected warning: %q", warn.Text())
	}
	if got := names(cols); !equal(got, []string{"invoice_no", "amount"}) {
		t.Errorf("columns = %v, want X's Default hitlist", got)
	}
	if cols[1].Label != "Amount" {
		t.Errorf("label taken from resource X, got %q", cols[1].Label)
	}
}

func TestResolve_NamedFromLaterResource(t *testing.T) {
	resources := []resource.Descriptor{
		res(t, "X", resource.ArchiveView, "s1"),
		res(t, "ftOrder", resource.Typed, ""),
	}
	spec, _ := NamedSpec("Compact")
	cols, warn, err := Resolve(resources, spec, newCatalog())
	if err != nil || !warn.IsOK() {
		t.Fatalf("err=%v warn=%q", err, warn.Text())
	}
	if got := names(cols); !equal(got, []string{"order_no", "title"}) {
		t.Errorf("columns = %v", got)
	}
	if cols[1].Kind != field.String || cols[1].Label != "Title" {
		t.Errorf("title column = %+v", cols[1])
	}
}

func TestResolve_UnresolvedNamedFallsBackWithWarning(t *testing.T) {
	resources := []resource.Descriptor{res(t, "ftOrder", resource.Typed, "")}
	spec, _ := NamedSpec("Missing")
	cols, warn, err := Resolve(resources, spec, newCatalog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn.Code() != status.HitlistFallback {
		t.Errorf("warning code = %d, want %d", warn.Code(), status.HitlistFallback)
	}
	want := []string{"order_no", "amount", "title", "created_at", "owner", "last_modified", "last_editor"}
	if got := names(cols); !equal(got, want) {
		t.Errorf("anonymous columns = %v, want %v", got, want)
	}
}

func TestResolve_AnonymousMultiServerWarning(t *testing.T) {
	cat := &mockCatalog{}
	resources := []resource.Descriptor{
		res(t, "A", resource.ArchiveView, "s1"),
		res(t, "B", resource.ArchiveLegacy, "s2"),
	}
	_, warn, err := Resolve(resources, AutoSpec(), cat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn.Code() != status.MultiServerHitlist {
		t.Errorf("warning code = %d, want %d", warn.Code(), status.MultiServerHitlist)
	}
}

func TestResolve_LocalArchiveNamedInWarning(t *testing.T) {
	resources := []resource.Descriptor{
		res(t, "V", resource.ArchiveView, ""),
		res(t, "L", resource.ArchiveLegacy, "s1"),
	}
	_, warn, err := Resolve(resources, AutoSpec(), &mockCatalog{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn.Code() != status.MultiServerHitlist {
		t.Fatalf("warning code = %d, want %d", warn.Code(), status.MultiServerHitlist)
	}
	if !strings.HasSuffix(warn.Text(), "archive servers local, s1") {
		t.Errorf("warning text = %q", warn.Text())
	}
}

func TestResolve_ExplicitRejectedWithArchive(t *testing.T) {
	spec, err := ExplicitSpec("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	resources := []resource.Descriptor{
		res(t, "L", resource.ArchiveLegacy, "s1"),
		res(t, "ftOrder", resource.Typed, ""),
	}
	if _, _, err := Resolve(resources, spec, newCatalog()); err == nil {
		t.Fatal("expected error for explicit hitlist with legacy archive")
	}
}

func TestResolve_ExplicitVerbatim(t *testing.T) {
	spec, _ := ExplicitSpec("amount", "unknown")
	resources := []resource.Descriptor{res(t, "ftOrder", resource.Typed, "")}
	cols, _, err := Resolve(resources, spec, newCatalog())
	if err != nil {
		t.Fatal(err)
	}
	if got := names(cols); !equal(got, []string{"amount", "unknown"}) {
		t.Errorf("columns = %v", got)
	}
	if cols[0].Label != "Order amount" || cols[1].Label != "unknown" {
		t.Errorf("labels = %q, %q", cols[0].Label, cols[1].Label)
	}
}

func TestExplicitSpec_Validation(t *testing.T) {
	if _, err := ExplicitSpec(); err == nil {
		t.Error("expected error for empty list")
	}
	if _, err := ExplicitSpec("a,b"); err == nil {
		t.Error("expected error for comma in name")
	}
	if _, err := ExplicitSpec("a", "a"); err == nil {
		t.Error("expected error for duplicate")
	}
}
