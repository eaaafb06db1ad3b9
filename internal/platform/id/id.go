// Package id provides utilities for generating URL-safe identifiers.
//
// Identifiers are UUID bytes encoded as base32 (RFC 4648) with no padding.
// The resulting strings are 26 characters long, lowercase, and safe for use
// in URLs and file paths.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random identifier built from UUIDv4 bytes.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// namespace scopes name-derived identifiers to this project.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://plantarium.verdantlab.dev"))

// Derive returns a deterministic identifier for a name. The same name always
// maps to the same identifier, which lets subscriptions address aggregates
// keyed by natural keys such as usernames.
func Derive(name string) string {
	u := uuid.NewSHA1(namespace, []byte(name))
	return strings.ToLower(encoding.EncodeToString(u[:]))
}
