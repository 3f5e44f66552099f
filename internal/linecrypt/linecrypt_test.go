package linecrypt

import (
	"errors"
	"strings"
	"testing"

	"github.com/animus-labs/whlobf/internal/domain"
)

const testKey = "WwAPKBMXKl-I43L4u8B5WD9xoperM9qhXDlLVWRFkiY="

func newCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := ParseKey(testKey)
	if err != nil {
		t.Fatalf("ParseKey() err=%v", err)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return c
}

func TestParseKeyRejectsBadMaterial(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"not_b64":   "not base64 at all!!",
		"too_short": "c2hvcnQ=",
		"std_b64":   "WwAPKBMXKl+I43L4u8B5WD9xoperM9qhXDlLVWRFkiY=",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKey(input)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("ParseKey(%q) err=%v, want configuration error", input, err)
			}
		})
	}
}

func TestGenerateKeyRoundTripsThroughParse(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() err=%v", err)
	}
	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatalf("ParseKey(generated) err=%v", err)
	}
	if parsed.String() != key.String() {
		t.Fatalf("key changed across parse")
	}
}

func TestDecryptLineInvertsEncryptLine(t *testing.T) {
	c := newCipher(t)
	lines := []string{
		"",
		"import os",
		"    return f'{x!r}'  # trailing comment",
		"tab\tseparated\tvalues",
		"whlobf-salt:123456",
		"ends with marker whlobf-salt:",
		"unicode: héllo wörld",
		"line with carriage return\r",
	}
	for _, line := range lines {
		token, err := c.EncryptLine(line)
		if err != nil {
			t.Fatalf("EncryptLine(%q) err=%v", line, err)
		}
		if !strings.HasPrefix(token, TokenPrefix) || !strings.HasSuffix(token, TokenSuffix) {
			t.Fatalf("token %q not wrapped", token)
		}
		got, err := c.DecryptLine(token)
		if err != nil {
			t.Fatalf("DecryptLine() err=%v", err)
		}
		if got != line {
			t.Fatalf("DecryptLine()=%q, want %q", got, line)
		}
	}
}

func TestEncryptLineSaltsIdenticalLines(t *testing.T) {
	c := newCipher(t)
	first, err := c.EncryptLine("")
	if err != nil {
		t.Fatalf("EncryptLine() err=%v", err)
	}
	second, err := c.EncryptLine("")
	if err != nil {
		t.Fatalf("EncryptLine() err=%v", err)
	}
	if first == second {
		t.Fatalf("identical lines produced identical tokens")
	}
}

func TestDecryptLineRejectsForeignKey(t *testing.T) {
	c := newCipher(t)
	token, err := c.EncryptLine("secret")
	if err != nil {
		t.Fatalf("EncryptLine() err=%v", err)
	}
	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() err=%v", err)
	}
	oc, err := New(other)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if _, err := oc.DecryptLine(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("DecryptLine() err=%v, want ErrInvalidToken", err)
	}
	if _, err := c.DecryptLine("no wrapper"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("DecryptLine(no wrapper) err=%v", err)
	}
}

func TestDecryptTextReplacesTokensInTraceback(t *testing.T) {
	c := newCipher(t)
	label, err := c.EncryptLine("wheel.bdist_wheel.get_tag")
	if err != nil {
		t.Fatalf("EncryptLine() err=%v", err)
	}
	traceback := "Traceback (most recent call last):\n  File \"/tmp/whlobf/abc.py\", line 3, in " + label + "\nValueError: bad"
	got, failed := c.DecryptText(traceback)
	if failed != 0 {
		t.Fatalf("failed=%d", failed)
	}
	if !strings.Contains(got, "in wheel.bdist_wheel.get_tag\n") {
		t.Fatalf("DecryptText()=%q", got)
	}
	if strings.Contains(got, TokenPrefix) {
		t.Fatalf("token left in output: %q", got)
	}
}

func TestDecryptBlobRestoresSourceBytes(t *testing.T) {
	c := newCipher(t)
	source := "def main():\n\n    print('hi')\n\n"
	lines := strings.Split(source, "\n")
	tokens := make([]string, 0, len(lines))
	for _, line := range lines {
		token, err := c.EncryptLine(line)
		if err != nil {
			t.Fatalf("EncryptLine() err=%v", err)
		}
		tokens = append(tokens, token)
	}
	got, err := c.DecryptBlob(strings.Join(tokens, "\n"))
	if err != nil {
		t.Fatalf("DecryptBlob() err=%v", err)
	}
	if got != source {
		t.Fatalf("DecryptBlob()=%q, want %q", got, source)
	}
}
