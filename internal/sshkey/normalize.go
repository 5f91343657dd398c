// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package sshkey

import (
	"regexp"
	"strings"
)

var (
	firstSeparator   = regexp.MustCompile(`[ \r\n\t]`)
	paddingSeparator = regexp.MustCompile(`=[ \r\n\t]`)
	controlChars     = regexp.MustCompile(`[\a\r\n\t]`)
)

// Normalize cleans up key text pasted by a user. Keys often arrive wrapped
// or with a newline between type and payload, so:
//
//  1. the first space, CR, LF or TAB becomes a single space (type/payload boundary),
//  2. the first '=' followed by one of those becomes "= " (payload/comment boundary),
//  3. all remaining BEL, CR, LF and TAB characters are dropped,
//
// and the result is trimmed. Only apply it to keys that were not stored yet.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = replaceFirst(firstSeparator, s, " ")
	s = replaceFirst(paddingSeparator, s, "= ")
	s = controlChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}
