// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package identifier derives the names gitolite uses to refer to credentials.
//
// An identifier looks like "<owner-tag>@redmine_<seconds>_<microseconds>" for
// user keys and "<owner-tag>_deploy_key_<n>@redmine_<seconds>_<microseconds>"
// for deploy keys. The part before '@' is the owner tag, the part after it
// the location tag.
package identifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// Separator joins the owner tag and the location tag.
	Separator = "@"
	// LocationPrefix starts every generated location tag.
	LocationPrefix = "redmine_"
	// DeployPseudoUser is inserted between owner tag and counter for deploy keys.
	DeployPseudoUser = "deploy_key"
)

var unsafeChars = regexp.MustCompile(`[^0-9a-zA-Z\-]`)

// Sanitize replaces every character outside [0-9A-Za-z-] with '_'.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// TimeTag formats t as "<unix seconds>_<microseconds>".
func TimeTag(t time.Time) string {
	return fmt.Sprintf("%d_%d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}

// ForUser returns the identifier of a user key for ownerTag created at t.
// The owner tag is used verbatim.
func ForUser(ownerTag string, t time.Time) string {
	return ownerTag + Separator + LocationPrefix + Sanitize(TimeTag(t))
}

// ForDeploy returns the identifier of the n-th deploy key of ownerTag
// created at t.
func ForDeploy(ownerTag string, n int, t time.Time) string {
	head := Sanitize(fmt.Sprintf("%s_%s_%d", ownerTag, DeployPseudoUser, n))
	return head + Separator + LocationPrefix + Sanitize(TimeTag(t))
}

// Split divides id once at the first '@'. location is empty when id has no
// separator.
func Split(id string) (owner, location string) {
	owner, location, _ = strings.Cut(id, Separator)
	return owner, location
}

// Generator produces identifiers using an injectable clock.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a Generator. A nil clock uses time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// User returns a fresh user-key identifier for ownerTag.
func (g *Generator) User(ownerTag string) string {
	return ForUser(ownerTag, g.now())
}

// Deploy returns a fresh deploy-key identifier for ownerTag, numbered after
// the owner's existingDeployKeys.
func (g *Generator) Deploy(ownerTag string, existingDeployKeys int) string {
	return ForDeploy(ownerTag, existingDeployKeys+1, g.now())
}
