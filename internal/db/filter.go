// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"strings"

	"github.com/toeirei/gitkeeper/internal/model"
)

// FilterCredentialsByTokens returns the subset of creds that match all
// tokens. Matching is case-insensitive substring containment on title,
// identifier and fingerprint. Empty tokens return creds unchanged.
func FilterCredentialsByTokens(creds []model.Credential, tokens []string) []model.Credential {
	if len(tokens) == 0 {
		return creds
	}
	out := make([]model.Credential, 0, len(creds))
	for _, c := range creds {
		title := strings.ToLower(c.Title())
		ident := strings.ToLower(c.Identifier())
		fp := strings.ToLower(c.Fingerprint())

		matchedAll := true
		for _, tok := range tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" {
				continue
			}
			if !strings.Contains(title, tok) && !strings.Contains(ident, tok) && !strings.Contains(fp, tok) {
				matchedAll = false
				break
			}
		}
		if matchedAll {
			out = append(out, c)
		}
	}
	return out
}
