// Package mimeheader decodes RFC 2047 encoded header values and charset-tagged
// byte payloads into best-effort UTF-8 text. It never fails: undecodable input
// degrades through a fallback chain instead of raising an error.
package mimeheader

import (
	"bytes"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Encoded-word as defined by RFC 2047: =?charset?encoding?text?=
var encodedWordRe = regexp.MustCompile(`=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`)

// Aliases tried right after a hint charset that turned out to be wrong.
// Real-world mail frequently mislabels these supersets.
var charsetAliases = map[string]string{
	"latin1":     "iso-8859-15",
	"iso-8859-1": "iso-8859-15",
	"cp1252":     "windows-1252",
	"us-ascii":   "utf-8",
}

// Decode returns the decoded form of a header value that may contain RFC 2047
// encoded-words. Each encoded segment is decoded independently, so one segment
// with a broken charset does not poison the rest of the header.
func Decode(raw string) string {
	raw = strings.ReplaceAll(raw, "\r", "")
	dec := &mime.WordDecoder{CharsetReader: charsetReader}
	if decoded, err := dec.DecodeHeader(raw); err == nil {
		return decoded
	}
	// DecodeHeader aborts on the first malformed word; retry word by word and
	// keep undecodable segments verbatim.
	return encodedWordRe.ReplaceAllStringFunc(raw, func(word string) string {
		if decoded, err := dec.Decode(word); err == nil {
			return decoded
		}
		return word
	})
}

// DecodeAll decodes every instance of a repeated header and joins them.
func DecodeAll(values []string, sep string) string {
	decoded := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		decoded = append(decoded, Decode(v))
	}
	return strings.Join(decoded, sep)
}

// DecodeBytes converts raw bytes into UTF-8 text, trying the hint charset
// first, then common fallbacks, and finally keeping valid UTF-8 runs with
// replacement characters. It never fails.
func DecodeBytes(b []byte, hint string) string {
	for _, name := range candidates(hint) {
		if s, ok := tryDecode(b, name); ok {
			return s
		}
	}
	return string(bytes.ToValidUTF8(b, []byte("�")))
}

// candidates yields the ordered charset chain: hint, its alias, then the
// common defaults.
func candidates(hint string) []string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	var chain []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			chain = append(chain, name)
		}
	}
	add(hint)
	add(charsetAliases[hint])
	add("utf-8")
	add("windows-1252")
	add("iso-8859-1")
	return chain
}

func tryDecode(b []byte, name string) (string, bool) {
	switch name {
	case "utf-8", "utf8", "ascii", "us-ascii":
		if utf8.Valid(b) {
			return string(b), true
		}
		return "", false
	}
	r, err := charset.Reader(name, bytes.NewReader(b))
	if err != nil {
		return "", false
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// charsetReader adapts DecodeBytes for mime.WordDecoder, which hands us the
// charset label of each encoded-word. It always succeeds so that decoding can
// degrade instead of failing.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(DecodeBytes(raw, label)), nil
}
