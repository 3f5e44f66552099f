// Package linecrypt is the single encrypt-line/decrypt-line primitive used to
// embed source text and traceback labels in generated code.
//
// A line is encrypted as line + "whlobf-salt:" + six random digits, so two
// equal lines never produce equal tokens. The Fernet ciphertext is wrapped as
//
//	<whlobf CIPHERTEXT>
//
// which is what shows up in a runtime traceback and what DecryptText looks for.
package linecrypt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/fernet/fernet-go"
)

const (
	TokenPrefix = "<whlobf "
	TokenSuffix = ">"

	saltMarker = "whlobf-salt:"
	saltMin    = 100000
	saltMax    = 999999
	saltDigits = 6
)

var tokenPattern = regexp.MustCompile(`<whlobf ([A-Za-z0-9_\-]+=*)>`)

var ErrInvalidToken = errors.New("invalid token")

// Cipher encrypts and decrypts single lines under one key.
type Cipher struct {
	key  *Key
	salt func() (int, error)
}

func New(key *Key) (*Cipher, error) {
	if key == nil || key.fk == nil {
		return nil, errors.New("key is required")
	}
	return &Cipher{key: key, salt: randomSalt}, nil
}

// EncryptLine returns the wrapped token for line. Every call draws a new salt.
func (c *Cipher) EncryptLine(line string) (string, error) {
	salt, err := c.salt()
	if err != nil {
		return "", fmt.Errorf("draw salt: %w", err)
	}
	if salt < saltMin || salt > saltMax {
		return "", fmt.Errorf("salt %d out of range", salt)
	}
	plaintext := line + saltMarker + strconv.Itoa(salt)
	token, err := fernet.EncryptAndSign([]byte(plaintext), c.key.fk)
	if err != nil {
		return "", fmt.Errorf("encrypt line: %w", err)
	}
	return TokenPrefix + string(token) + TokenSuffix, nil
}

// DecryptLine is the exact inverse of EncryptLine.
func (c *Cipher) DecryptLine(token string) (string, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, TokenPrefix) || !strings.HasSuffix(token, TokenSuffix) {
		return "", fmt.Errorf("%w: missing %q wrapper", ErrInvalidToken, strings.TrimSpace(TokenPrefix))
	}
	body := token[len(TokenPrefix) : len(token)-len(TokenSuffix)]
	if body == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrInvalidToken)
	}
	msg := fernet.VerifyAndDecrypt([]byte(body), 0, []*fernet.Key{c.key.fk})
	if msg == nil {
		return "", fmt.Errorf("%w: ciphertext does not verify under this key", ErrInvalidToken)
	}
	return stripSalt(string(msg))
}

// DecryptText replaces every token found in text with its plaintext, for
// example inside a captured traceback. Tokens that fail to decrypt are left
// in place and counted.
func (c *Cipher) DecryptText(text string) (string, int) {
	failed := 0
	out := tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		plain, err := c.DecryptLine(token)
		if err != nil {
			failed++
			return token
		}
		return plain
	})
	return out, failed
}

// DecryptBlob decodes the encrypted source file written at runtime: one token
// per line, rejoined with "\n".
func (c *Cipher) DecryptBlob(blob string) (string, error) {
	lines := strings.Split(blob, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		plain, err := c.DecryptLine(strings.TrimSuffix(line, "\r"))
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, plain)
	}
	return strings.Join(out, "\n"), nil
}

func stripSalt(msg string) (string, error) {
	idx := strings.LastIndex(msg, saltMarker)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing salt suffix", ErrInvalidToken)
	}
	digits := msg[idx+len(saltMarker):]
	if len(digits) != saltDigits {
		return "", fmt.Errorf("%w: malformed salt suffix", ErrInvalidToken)
	}
	if _, err := strconv.Atoi(digits); err != nil {
		return "", fmt.Errorf("%w: malformed salt suffix", ErrInvalidToken)
	}
	return msg[:idx], nil
}

func randomSalt() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(saltMax-saltMin+1))
	if err != nil {
		return 0, err
	}
	return saltMin + int(n.Int64()), nil
}
