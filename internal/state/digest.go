package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/ashita-ai/menusync/internal/model"
)

// Digest returns a hex SHA-256 of the RFC 8785 canonical JSON form of the
// state's persisted content. Two states with the same items, wallet and
// task counters have the same digest regardless of map ordering or
// LastUpdated.
func Digest(s model.State) (string, error) {
	b, err := json.Marshal(s.Content())
	if err != nil {
		return "", fmt.Errorf("state: marshal content: %w", err)
	}
	canon, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("state: canonicalize content: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
