// Package models holds the data model: the author-facing Blueprint tree,
// its immutable published snapshots, the compiled artifacts the pipeline
// actually evaluates against, transcripts, and the terminal Evaluation /
// SandboxRun documents.
//
// All identifiers are opaque 128-bit values: they are generated up front
// by the Blueprint Mapper so cross-references between compiled artifacts
// are resolvable before anything is persisted, rather than relying on
// database-assigned keys.
package models

import "github.com/google/uuid"

// NewID generates a new opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first 8 hex characters of an ID, used to disambiguate
// generated display names ("{blueprint_name} (bp:{short_id} v{n})").
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
