// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message ID used in the Go sources exists in
// the primary locale, that every secondary locale carries all primary IDs
// and reports primary IDs nothing refers to.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const primaryLocale = "en.yaml"

var (
	// i18n.T("cli.key_added") and bare literals such as "cli.key_locked"
	// that are passed to T through a variable. Bare literals only count when
	// their namespace exists in the primary locale.
	usedKeyRe = regexp.MustCompile(`i18n\.T\("([^"]+)"|"([a-z]+\.[a-z_]+)"`)
	// i18n.T("field." + name) marks the whole "field." family as used.
	prefixRe = regexp.MustCompile(`i18n\.T\("([a-z_]+\.)"\s*\+`)
)

// report is the outcome of one lint run.
type report struct {
	PrimaryKeys int
	// Undefined lists IDs used in code but absent from the primary locale.
	Undefined []string
	// Missing maps a secondary locale file to the primary IDs it lacks.
	Missing map[string][]string
	// Orphaned lists primary IDs no code refers to.
	Orphaned []string
}

func (r report) failed() bool {
	if len(r.Undefined) > 0 {
		return true
	}
	for _, keys := range r.Missing {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

func main() {
	root := flag.String("root", ".", "module root to scan")
	locales := flag.String("locales", "internal/i18n/locales", "directory holding the locale files")
	flag.Parse()

	r, err := lint(*root, *locales)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-linter: %v\n", err)
		os.Exit(2)
	}
	printReport(os.Stdout, r)
	if r.failed() {
		os.Exit(1)
	}
}

func lint(root, localesDir string) (report, error) {
	used, literals, prefixes, err := findUsedKeys(root)
	if err != nil {
		return report{}, fmt.Errorf("scan sources: %w", err)
	}
	primary, err := loadKeysFromLocale(filepath.Join(localesDir, primaryLocale))
	if err != nil {
		return report{}, fmt.Errorf("load primary locale: %w", err)
	}
	namespaces := make(map[string]struct{})
	for key := range primary {
		namespaces[namespace(key)] = struct{}{}
	}
	for lit := range literals {
		if _, ok := namespaces[namespace(lit)]; ok {
			used[lit] = struct{}{}
		}
	}

	r := report{PrimaryKeys: len(primary), Missing: map[string][]string{}}
	for key := range used {
		if _, ok := primary[key]; !ok {
			r.Undefined = append(r.Undefined, key)
		}
	}
	for key := range primary {
		if _, ok := used[key]; ok || hasAnyPrefix(key, prefixes) {
			continue
		}
		r.Orphaned = append(r.Orphaned, key)
	}

	files, err := filepath.Glob(filepath.Join(localesDir, "*.yaml"))
	if err != nil {
		return report{}, err
	}
	for _, file := range files {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		secondary, err := loadKeysFromLocale(file)
		if err != nil {
			return report{}, fmt.Errorf("load %s: %w", file, err)
		}
		var missing []string
		for key := range primary {
			if _, ok := secondary[key]; !ok {
				missing = append(missing, key)
			}
		}
		sort.Strings(missing)
		r.Missing[filepath.Base(file)] = missing
	}

	sort.Strings(r.Undefined)
	sort.Strings(r.Orphaned)
	return r, nil
}

func namespace(key string) string {
	ns, _, _ := strings.Cut(key, ".")
	return ns
}

func hasAnyPrefix(key string, prefixes map[string]struct{}) bool {
	for p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// findUsedKeys scans non-test .go files below root. The tools directory and
// hidden or underscore-prefixed directories are skipped.
func findUsedKeys(root string) (keys, literals, prefixes map[string]struct{}, err error) {
	keys = make(map[string]struct{})
	literals = make(map[string]struct{})
	prefixes = make(map[string]struct{})

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range usedKeyRe.FindAllStringSubmatch(string(content), -1) {
			switch {
			case strings.HasSuffix(m[1], "."):
				// prefix of a computed ID, handled by prefixRe
			case m[1] != "":
				keys[m[1]] = struct{}{}
			case m[2] != "":
				literals[m[2]] = struct{}{}
			}
		}
		for _, m := range prefixRe.FindAllStringSubmatch(string(content), -1) {
			prefixes[m[1]] = struct{}{}
		}
		return nil
	})
	return keys, literals, prefixes, err
}

// loadKeysFromLocale reads a locale file and returns its message IDs. Flat
// dotted keys and nested maps both yield dotted IDs.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAML(next, val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}

func printReport(w io.Writer, r report) {
	fmt.Fprintf(w, "primary locale %s: %d messages\n", primaryLocale, r.PrimaryKeys)
	section := func(title string, keys []string) {
		fmt.Fprintf(w, "\n--- %s ---\n", title)
		if len(keys) == 0 {
			fmt.Fprintln(w, "  none")
			return
		}
		for _, k := range keys {
			fmt.Fprintf(w, "  - %s\n", k)
		}
	}
	section("Used in code but not defined", r.Undefined)

	files := make([]string, 0, len(r.Missing))
	for f := range r.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		section("Missing in "+f, r.Missing[f])
	}
	section("Orphaned (defined but unused)", r.Orphaned)
}
