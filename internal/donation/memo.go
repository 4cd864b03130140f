package donation

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"

	"treasury/internal/domain"
	"treasury/internal/ledger"
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MemoCodec generates correlation tokens and finds them in memo text.
// A token is the prefix followed by the lower-case unpadded base32 encoding
// of size random bytes.
type MemoCodec struct {
	prefix  string
	size    int
	pattern *regexp.Regexp
}

func NewMemoCodec(prefix string, size int) *MemoCodec {
	prefix = strings.ToLower(prefix)
	length := tokenEncoding.EncodedLen(size)
	pattern := regexp.MustCompile(fmt.Sprintf(`(?i)(?:^|[^a-z0-9])(%s[a-z2-7]{%d})(?:$|[^a-z0-9])`, regexp.QuoteMeta(prefix), length))
	return &MemoCodec{prefix: prefix, size: size, pattern: pattern}
}

func (c *MemoCodec) Generate() (string, error) {
	buf := make([]byte, c.size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return c.prefix + strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}

// Extract returns the first token embedded in memo. Hex-encoded memos are
// decoded first when the raw text carries no token.
func (c *MemoCodec) Extract(memo string) (string, error) {
	if token, ok := c.find(memo); ok {
		return token, nil
	}
	if decoded := ledger.DecodeMemo(memo); decoded != strings.TrimSpace(memo) {
		if token, ok := c.find(decoded); ok {
			return token, nil
		}
	}
	return "", domain.ErrMalformedMemo
}

func (c *MemoCodec) find(text string) (string, bool) {
	m := c.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
