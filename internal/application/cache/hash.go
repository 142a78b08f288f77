package cache

import (
	"strconv"
	"unicode/utf16"
)

const hashWindow = 10000

// HashText is a 32-bit rolling hash (h = h*31 + c) over the first 10,000
// UTF-16 code units of text, printed as signed hex. It matches the hash the
// browser extension computes so cache keys agree across clients.
func HashText(text string) string {
	units := utf16.Encode([]rune(text))
	if len(units) > hashWindow {
		units = units[:hashWindow]
	}
	var h int32
	for _, c := range units {
		h = (h << 5) - h + int32(c)
	}
	return strconv.FormatInt(int64(h), 16)
}
