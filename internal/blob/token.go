package blob

import (
	"fmt"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

// Tokenizer mints and verifies Fernet download tokens. A token embeds
// the blob key and carries its own timestamp, so verification enforces
// the TTL without any server-side state.
type Tokenizer struct {
	key *fernet.Key
	ttl time.Duration
}

// NewTokenizer creates a Tokenizer from a URL-safe base64 Fernet key.
func NewTokenizer(keyStr string, ttl time.Duration) (*Tokenizer, error) {
	keyStr = strings.TrimSpace(keyStr)
	if keyStr == "" {
		return nil, fmt.Errorf("download token key is empty")
	}

	k, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decoding fernet key: %w", err)
	}
	return &Tokenizer{key: k, ttl: ttl}, nil
}

// GenerateKey creates a new random Fernet key, encoded for config use.
func GenerateKey() (string, error) {
	k := new(fernet.Key)
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return k.Encode(), nil
}

// Mint signs a blob key into an expiring download token.
func (t *Tokenizer) Mint(blobKey string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(blobKey), t.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(tok), nil
}

// Verify checks a token's signature and age, returning the blob key it
// grants access to.
func (t *Tokenizer) Verify(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), t.ttl, []*fernet.Key{t.key})
	if msg == nil {
		return "", fmt.Errorf("invalid or expired download token")
	}
	return string(msg), nil
}
