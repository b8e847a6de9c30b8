// cache/keycodec.go
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloudgate-io/permcache/errors"
	"github.com/cloudgate-io/permcache/model"
)

const maxIdentifierLength = 512

// KeyCodec turns a check tuple into a stable lookup key. Identifiers
// are opaque and may contain any character, so the composite is
// length-prefixed rather than separator-joined: ("ab","c") and
// ("a","bc") must never encode to the same key. The digest is only the
// storage map's lookup key; the full tuple travels with the entry and
// is verified on every hit, so a digest collision degrades to a miss
// instead of a wrong decision.
type KeyCodec struct{}

func NewKeyCodec() *KeyCodec {
	return &KeyCodec{}
}

// Encode returns the storage key for a check tuple.
func (kc *KeyCodec) Encode(req model.CheckRequest) (string, error) {
	if err := validateIdentifier("tenant_id", req.TenantID, true); err != nil {
		return "", err
	}
	if err := validateIdentifier("principal_id", req.PrincipalID, true); err != nil {
		return "", err
	}
	if err := validateIdentifier("permission", req.Permission, true); err != nil {
		return "", err
	}
	if err := validateIdentifier("resource_id", req.ResourceID, false); err != nil {
		return "", err
	}

	h := sha256.New()
	var lenBuf [4]byte
	for _, field := range []string{req.TenantID, req.PrincipalID, req.Permission, req.ResourceID} {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
		h.Write(lenBuf[:])
		h.Write([]byte(field))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), nil
}

func validateIdentifier(name, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%w: %s is empty", errors.ErrInvalidKey, name)
		}
		return nil
	}
	if len(value) > maxIdentifierLength {
		return fmt.Errorf("%w: %s exceeds %d bytes", errors.ErrInvalidKey, name, maxIdentifierLength)
	}
	if strings.ContainsRune(value, '\x00') {
		return fmt.Errorf("%w: %s contains a NUL byte", errors.ErrInvalidKey, name)
	}
	return nil
}
