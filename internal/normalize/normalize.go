package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AppID normalizes an application identifier defensively: nil-ish input
// becomes the empty string, surrounding whitespace is dropped. When hash is
// set the identifier is irreversibly reduced to the first 8 bytes of its
// SHA-256 digest, hex encoded, before any tracking sees it.
func AppID(appID string, hash bool) string {
	id := strings.TrimSpace(appID)
	if !hash {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
