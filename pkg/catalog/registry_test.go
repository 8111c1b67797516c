package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestResolveLabel(t *testing.T) {
	r := NewStaticRegistry()

	tests := []struct {
		in   string
		want string
	}{
		{"norma", "Norma"},
		{"NORMA", "Norma"},
		{"Concetto_Giuridico", "ConcettoGiuridico"},
		{"concetto giuridico", "ConcettoGiuridico"},
		{"legal-concept", "ConcettoGiuridico"},
		{"Article", "Articolo"},
		{"ConcettoGiuridico", "ConcettoGiuridico"},
		{"", "Entity"},
		{"   ", "Entity"},
		{"unknown", "Entity"},
		{"node", "Entity"},
		{"ente pubblico", "Ente_pubblico"},
		{"autorità", "Autorita"},
		{"2nd type", "T_2nd_type"},
		{"!!!", "Entity"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := r.ResolveLabel(tt.in); got != tt.want {
				t.Fatalf("ResolveLabel(%q): expected %q, got %q", tt.in, tt.want, got)
			}
		})
	}
}

func TestResolveRelation(t *testing.T) {
	r := NewStaticRegistry()

	tests := []struct {
		in   string
		want string
	}{
		{"abroga", "ABROGA"},
		{"Abrogates, repeals", "ABROGA"},
		{"refers to", "RINVIA_A"},
		{"REFERS_TO", "RINVIA_A"},
		{"modifica e abroga", "MODIFICA"},
		{"entrata in vigore", "IN_VIGORE_DAL"},
		{"modificato", "MODIFICA"},
		{"employs", "EMPLOYS"},
		{"works for, pays", "WORKS_FOR_PAYS"},
		{"", "RELATED_TO"},
		{"!!!", "RELATED_TO"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := r.ResolveRelation(tt.in); got != tt.want {
				t.Fatalf("ResolveRelation(%q): expected %q, got %q", tt.in, tt.want, got)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if got := SanitizeRelationType("a-b c"); got != "A_B_C" {
		t.Fatalf("expected A_B_C, got %s", got)
	}
	if got := SanitizeRelationType("`) DETACH DELETE n //"); !ValidRelationType(got) {
		t.Fatalf("sanitized relation %q is not a valid identifier", got)
	}
	if got := SanitizeLabel("Foo`Bar"); got != "Foo_Bar" {
		t.Fatalf("expected Foo_Bar, got %s", got)
	}
	if !IsGenericLabel("Entity") || !IsGenericLabel("") || IsGenericLabel("Norma") {
		t.Fatal("unexpected IsGenericLabel result")
	}
}

func TestDateLabels(t *testing.T) {
	r := NewStaticRegistry()
	if !r.IsDateLabel("Data") {
		t.Fatal("expected Data to be a date label")
	}
	if r.IsDateLabel("Norma") {
		t.Fatal("expected Norma not to be a date label")
	}
	if got := r.DateLabel(); got != "Data" {
		t.Fatalf("expected date label Data, got %q", got)
	}
	if got := NewRegistryFromCatalog(&Catalog{EntityTypes: []EntityType{{Name: "legge"}}}).DateLabel(); got != "" {
		t.Fatalf("expected no date label, got %q", got)
	}
}

type flakySource struct {
	mu    sync.Mutex
	cat   *Catalog
	err   error
	loads int
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Load(context.Context) (*Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.cat, f.err
}

func TestReloadSwapsSnapshot(t *testing.T) {
	src := &flakySource{cat: &Catalog{EntityTypes: []EntityType{{Name: "persona", Label: "Persona"}}}}
	r, err := NewRegistry(context.Background(), src)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if got := r.ResolveLabel("giudice"); got != "Giudice" {
		t.Fatalf("expected fallback Giudice, got %s", got)
	}

	src.mu.Lock()
	src.cat = &Catalog{EntityTypes: []EntityType{{Name: "giudice", Label: "Magistrato"}}}
	src.mu.Unlock()
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := r.ResolveLabel("giudice"); got != "Magistrato" {
		t.Fatalf("expected Magistrato after reload, got %s", got)
	}

	src.mu.Lock()
	src.err = errors.New("db down")
	src.mu.Unlock()
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if got := r.ResolveLabel("giudice"); got != "Magistrato" {
		t.Fatalf("expected previous snapshot to stay active, got %s", got)
	}
}

func TestReloadRejectsDuplicates(t *testing.T) {
	src := &flakySource{cat: &Catalog{EntityTypes: []EntityType{{Name: "norma"}, {Name: "Norma"}}}}
	if _, err := NewRegistry(context.Background(), src); err == nil {
		t.Fatal("expected duplicate entity types to be rejected")
	}
}

func TestFileSourceAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeCatalog := func(label string) {
		t.Helper()
		doc := "entity_types:\n  - name: norma\n    label: " + label + "\nrelation_types:\n  - name: cita\n    aliases: [cites]\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeCatalog("Norma")

	src := NewFileSource(path)
	src.Debounce = 10 * time.Millisecond
	r, err := NewRegistry(context.Background(), src)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if got := r.ResolveRelation("cites"); got != "CITA" {
		t.Fatalf("expected CITA, got %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, time.Second) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeCatalog("Fonte")

	deadline := time.Now().Add(5 * time.Second)
	for r.ResolveLabel("norma") != "Fonte" {
		if time.Now().After(deadline) {
			t.Fatalf("catalog was not reloaded, label is %s", r.ResolveLabel("norma"))
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}
}

func TestParseCatalogJSON(t *testing.T) {
	c, err := ParseCatalog([]byte(`{"entity_types":[{"name":"luogo","color":"#00ff00"}],"relation_types":[]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.EntityTypes) != 1 || c.EntityTypes[0].Color != "#00ff00" {
		t.Fatalf("unexpected catalog %+v", c)
	}
	if _, err := ParseCatalog([]byte(`{}`)); err == nil {
		t.Fatal("expected empty catalog to be rejected")
	}
}

func TestEntityTypeNames(t *testing.T) {
	r := NewRegistryFromCatalog(&Catalog{EntityTypes: []EntityType{{Name: "b"}, {Name: "a"}}})
	if got := r.EntityTypeNames(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("expected catalog order, got %v", got)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Fatalf("expected a JSON object, got %q", string(data))
	}
}
