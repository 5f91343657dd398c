package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFlattenYAML(t *testing.T) {
	keys := make(map[string]struct{})
	flattenYAML("", map[string]any{
		"cli.key_added": "x",
		"error": map[string]any{"presence": "y"},
	}, keys)
	for _, want := range []string{"cli.key_added", "error.presence"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("missing %s in %v", want, keys)
		}
	}
}

func TestLint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cmd", "a.go"), `package a
func f(field string) {
	_ = i18n.T("cli.key_added")
	_ = i18n.T("cli.not_defined")
	_ = i18n.T("field." + field)
	id := "cli.key_locked"
	_ = id
}`)
	writeFile(t, filepath.Join(root, "cmd", "a_test.go"), `package a
var _ = i18n.T("cli.only_in_tests")`)
	writeFile(t, filepath.Join(root, "tools", "x.go"), `package x
var _ = i18n.T("tools.ignored")`)

	locales := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(locales, "en.yaml"), `"cli.key_added": "added"
"cli.key_locked": "locked"
"cli.stale": "stale"
"field.title": "Title"
`)
	writeFile(t, filepath.Join(locales, "de.yaml"), `"cli.key_added": "hinzugefügt"
"field.title": "Titel"
`)

	r, err := lint(root, locales)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if r.PrimaryKeys != 4 {
		t.Fatalf("expected 4 primary keys, got %d", r.PrimaryKeys)
	}
	if strings.Join(r.Undefined, ",") != "cli.not_defined" {
		t.Fatalf("unexpected undefined keys %v", r.Undefined)
	}
	if strings.Join(r.Orphaned, ",") != "cli.stale" {
		t.Fatalf("unexpected orphaned keys %v", r.Orphaned)
	}
	if got := strings.Join(r.Missing["de.yaml"], ","); got != "cli.key_locked,cli.stale" {
		t.Fatalf("unexpected missing keys for de.yaml: %s", got)
	}
	if !r.failed() {
		t.Fatalf("report with undefined keys must fail")
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	for _, want := range []string{"Missing in de.yaml", "cli.not_defined", "Orphaned"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("report lacks %q:\n%s", want, buf.String())
		}
	}
}

func TestLint_RepositoryLocalesAreConsistent(t *testing.T) {
	r, err := lint(filepath.Join("..", ".."), filepath.Join("..", "..", "internal", "i18n", "locales"))
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if r.failed() {
		var buf bytes.Buffer
		printReport(&buf, r)
		t.Fatalf("locale files are inconsistent:\n%s", buf.String())
	}
}
