// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package i18n renders user facing messages. Translations live in embedded
// YAML files, one per language, and are loaded through go-i18n.
package i18n

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/toeirei/gitkeeper/internal/logging"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	current   string
	available []string
)

// Init loads every embedded locale and selects lang. Unknown languages fall
// back to English.
func Init(lang string) {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	var langs []string
	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			continue
		}
		if _, err := b.ParseMessageFileBytes(data, f.Name()); err != nil {
			logging.Warnf("skipping locale %s: %v", f.Name(), err)
			continue
		}
		langs = append(langs, strings.TrimSuffix(f.Name(), ".yaml"))
	}
	sort.Strings(langs)

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	localizer = i18n.NewLocalizer(b, lang, "en")
	current = lang
	available = langs
}

// SetLang changes the active language.
func SetLang(lang string) {
	Init(lang)
}

// Lang returns the language selected by the last Init.
func Lang() string {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Available lists the embedded locales.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	return append([]string(nil), available...)
}

// T translates messageID, filling the template with data. A missing
// message renders as its ID.
func T(messageID string, data ...map[string]any) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		Init("en")
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}
	msg, err := l.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}
