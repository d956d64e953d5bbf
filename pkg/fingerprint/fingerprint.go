package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Ramsey-B/sage/pkg/document"
)

// Generate creates a deterministic content hash for a document.
// The hash is a SHA256 of the canonical (sorted-key) JSON rendering, so
// structurally equal documents always produce the same hash regardless of
// field order.
func Generate(doc document.Value) string {
	canonical, err := json.Marshal(doc)
	if err != nil {
		// only unrepresentable numbers (NaN/Inf) can fail; hash the error text
		// so the caller still gets a deterministic, non-colliding value
		canonical = []byte("!" + err.Error())
	}

	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a content hash from a raw JSON payload.
func GenerateFromJSON(data json.RawMessage) (string, error) {
	doc, err := document.FromJSON(data)
	if err != nil {
		return "", err
	}
	return Generate(doc), nil
}

// HasChanged compares two content hashes.
func HasChanged(oldHash, newHash string) bool {
	return oldHash != newHash
}
