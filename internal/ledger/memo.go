package ledger

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// DecodeMemo returns the text of a memo field. Hex-encoded memos are decoded
// as UTF-8 with invalid bytes replaced; anything else is returned as-is.
func DecodeMemo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return raw
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
