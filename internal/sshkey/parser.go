// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey parses and normalizes SSH public key text as submitted by
// users, e.g. "ssh-ed25519 AAAAC3Nza... alice@laptop".
package sshkey

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

var keyPattern = regexp.MustCompile(`(?s)^(\S+)\s+(\S+)(?:\s+(.*))?$`)

// Parse splits a public key line into its type token, base64 payload and
// optional comment. The first two whitespace-delimited tokens are the type
// and the payload; everything after them is the comment.
func Parse(rawKey string) (keyType, payload, comment string, err error) {
	line := strings.TrimSpace(rawKey)
	if line == "" {
		err = &MalformedKeyError{Reason: "empty key"}
		return
	}
	m := keyPattern.FindStringSubmatch(line)
	if m == nil {
		err = &MalformedKeyError{Reason: "missing key data after key type"}
		return
	}
	keyType = m[1]
	payload = m[2]
	comment = strings.TrimSpace(m[3])
	return
}

// Payload returns only the base64 body of rawKey.
func Payload(rawKey string) (string, error) {
	_, payload, _, err := Parse(rawKey)
	return payload, err
}

// SamePayload reports whether both keys parse and carry byte-equal payloads.
// Type token and comment are ignored.
func SamePayload(a, b string) bool {
	pa, err := Payload(a)
	if err != nil {
		return false
	}
	pb, err := Payload(b)
	if err != nil {
		return false
	}
	return pa == pb
}

// PayloadHash returns the hex SHA256 of the payload. The storage layer keys
// its uniqueness index on this value.
func PayloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of rawKey.
func Fingerprint(rawKey string) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(rawKey))
	if err != nil {
		return "", &MalformedKeyError{Reason: "unparseable public key", Err: err}
	}
	return ssh.FingerprintSHA256(pub), nil
}
