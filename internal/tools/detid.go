package tools

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// DeterministicID hashes (toolCallID, fileName, artifactType) into a UUID so
// retries of the same tool call with the same inputs produce the same
// artifact id instead of a duplicate row (§9 "Deterministic ids").
func DeterministicID(toolCallID, fileName, artifactType string) uuid.UUID {
	sum := sha256.Sum256([]byte(toolCallID + "\x00" + fileName + "\x00" + artifactType))
	var id uuid.UUID
	copy(id[:], sum[:16])
	// Tag as a name-based (v5-shaped) UUID so the value is visibly
	// deterministic rather than colliding with randomly generated ids.
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
