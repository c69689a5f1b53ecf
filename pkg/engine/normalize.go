package engine

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Forms holds the comparison forms derived from one raw request. Rules are
// evaluated against Lowered, Cleaned and Decoded so an attacker has to defeat
// every normalization path at once to slip a payload through.
type Forms struct {
	Original string // untouched input
	Decoded  string // percent/%uXXXX/entity/escape decoded, NFKC folded
	Lowered  string // Decoded, lower-cased
	Cleaned  string // Lowered with comments, control chars and whitespace runs removed
}

// maxPercentDecodeIterations bounds nested percent decoding (%2525 -> %25 -> %).
const maxPercentDecodeIterations = 3

var (
	reIISUnicode   = regexp.MustCompile(`%u([0-9a-fA-F]{4})`)
	reEntityHex    = regexp.MustCompile(`&#x([0-9a-fA-F]+);`)
	reEntityDec    = regexp.MustCompile(`&#([0-9]+);`)
	reEscapeU      = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
	reEscapeX      = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
	reSQLBlockCmt  = regexp.MustCompile(`/\*!?[^*/]*\*/`)
	reSQLLineCmt   = regexp.MustCompile(`--[^\r\n]*`)
	reHashCmt      = regexp.MustCompile(`#[^\r\n]*`)
	reSlashCmt     = regexp.MustCompile(`//[^\r\n]*`)
	reControlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")
	reWhitespace   = regexp.MustCompile(`[\s]+`)
)

// Normalize derives all comparison forms from raw. It never fails: malformed
// escape sequences are left literal rather than dropped.
func Normalize(raw string) Forms {
	decoded := raw

	// Nested percent encoding, bounded or to fixed point.
	for i := 0; i < maxPercentDecodeIterations; i++ {
		next := percentDecode(decoded)
		if next == decoded {
			break
		}
		decoded = next
	}

	// IIS-style %uXXXX unicode encoding.
	decoded = reIISUnicode.ReplaceAllStringFunc(decoded, func(m string) string {
		return decodeCodePoint(m[2:], 16, m)
	})

	// HTML numeric entities, hex then decimal.
	decoded = reEntityHex.ReplaceAllStringFunc(decoded, func(m string) string {
		return decodeCodePoint(m[3:len(m)-1], 16, m)
	})
	decoded = reEntityDec.ReplaceAllStringFunc(decoded, func(m string) string {
		return decodeCodePoint(m[2:len(m)-1], 10, m)
	})

	// Backslash unicode/hex escapes.
	decoded = reEscapeU.ReplaceAllStringFunc(decoded, func(m string) string {
		return decodeCodePoint(m[2:], 16, m)
	})
	decoded = reEscapeX.ReplaceAllStringFunc(decoded, func(m string) string {
		return decodeCodePoint(m[2:], 16, m)
	})

	// NFKC folds fullwidth, mathematical and circled variants onto their
	// ASCII equivalents, so "ＳＥＬＥＣＴ" meets the same rules as "SELECT".
	decoded = norm.NFKC.String(decoded)

	lowered := strings.ToLower(decoded)

	// Strip comment styles used for token splitting (un/**/ion), replacing
	// each with a space so adjacent tokens do not fuse into new ones.
	cleaned := reSQLBlockCmt.ReplaceAllString(lowered, " ")
	cleaned = reSQLLineCmt.ReplaceAllString(cleaned, " ")
	cleaned = reHashCmt.ReplaceAllString(cleaned, " ")
	cleaned = reSlashCmt.ReplaceAllString(cleaned, " ")

	// Control chars except CR/LF, which stay significant for header
	// injection detection in the Lowered form.
	cleaned = reControlChars.ReplaceAllString(cleaned, "")

	// Collapse whitespace runs, including the CR/LF kept out of the strip
	// above: Cleaned is the single-line comparison form.
	cleaned = strings.TrimSpace(reWhitespace.ReplaceAllString(cleaned, " "))

	return Forms{
		Original: raw,
		Decoded:  decoded,
		Lowered:  lowered,
		Cleaned:  cleaned,
	}
}

// percentDecode is one pass of lenient application/x-www-form-urlencoded
// decoding: '+' becomes space, valid %XX becomes the byte, anything
// malformed stays literal. net/url rejects malformed input outright, which
// would let an attacker disable decoding with a single stray '%'.
func percentDecode(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// decodeCodePoint parses digits in the given base and returns the rune,
// or fallback when the value is not a valid code point.
func decodeCodePoint(digits string, base int, fallback string) string {
	n, err := strconv.ParseInt(digits, base, 32)
	if err != nil || n < 0 || n > 0x10FFFF {
		return fallback
	}
	return string(rune(n))
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
