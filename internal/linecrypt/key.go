package linecrypt

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"

	"github.com/animus-labs/whlobf/internal/domain"
)

const keySize = 32

// Key is validated symmetric key material shared by the injector and the
// decryption utility.
type Key struct {
	fk *fernet.Key
}

// ParseKey validates a URL-safe base64 encoded 32-byte key. Failures wrap
// domain.ErrConfiguration.
func ParseKey(encoded string) (*Key, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: key is required", domain.ErrConfiguration)
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: key must be url-safe base64: %v", domain.ErrConfiguration, err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("%w: key must decode to %d bytes, got %d", domain.ErrConfiguration, keySize, len(raw))
	}
	fk, err := fernet.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return &Key{fk: fk}, nil
}

// GenerateKey draws a fresh random key.
func GenerateKey() (*Key, error) {
	var fk fernet.Key
	if err := fk.Generate(); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Key{fk: &fk}, nil
}

// String returns the URL-safe base64 form accepted by ParseKey.
func (k *Key) String() string {
	if k == nil || k.fk == nil {
		return ""
	}
	return k.fk.Encode()
}
