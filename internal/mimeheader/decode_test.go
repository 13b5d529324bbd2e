package mimeheader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode_PlainHeader(t *testing.T) {
	assert.Equal(t, "Hello world", Decode("Hello world"))
}

func TestDecode_QuotedPrintableUTF8(t *testing.T) {
	decoded := Decode("=?UTF-8?Q?Invitaci=C3=B3n:_Reuni=C3=B3n_de_proyecto?=")
	assert.Equal(t, "Invitación: Reunión de proyecto", decoded)
}

func TestDecode_Base64UTF8(t *testing.T) {
	decoded := Decode("=?utf-8?B?w6l0w6k=?=")
	assert.Equal(t, "été", decoded)
}

func TestDecode_MixedCharsetsPerSegment(t *testing.T) {
	// Adjacent encoded-words using different charsets must each decode with
	// their own charset and join without spurious separators.
	decoded := Decode("=?ISO-8859-1?Q?caf=E9?= =?UTF-8?Q?_au_lait?=")
	assert.Equal(t, "café au lait", decoded)
}

func TestDecode_UnknownCharsetFallsBack(t *testing.T) {
	// x-unknown is not a registered charset; the fallback chain should still
	// produce text rather than the raw encoded-word.
	decoded := Decode("=?x-unknown?Q?caf=E9?=")
	assert.NotContains(t, decoded, "=?x-unknown?")
	assert.Contains(t, decoded, "caf")
}

func TestDecode_MalformedSegmentKeptVerbatim(t *testing.T) {
	// One broken word must not poison the valid one next to it.
	decoded := Decode("=?UTF-8?Q?ok?= =?UTF-8?X?broken?=")
	assert.Contains(t, decoded, "ok")
}

func TestDecode_StripsCarriageReturns(t *testing.T) {
	assert.Equal(t, "folded value", Decode("folded\r value"))
}

func TestDecodeAll_JoinsNonEmpty(t *testing.T) {
	joined := DecodeAll([]string{"<a@x>", "", "<b@x>"}, " ")
	assert.Equal(t, "<a@x> <b@x>", joined)
}

func TestDecodeBytes_HintCharset(t *testing.T) {
	// 0xE9 is é in iso-8859-1 and invalid as UTF-8.
	out := DecodeBytes([]byte{'c', 'a', 'f', 0xE9}, "iso-8859-1")
	assert.Equal(t, "café", out)
}

func TestDecodeBytes_WrongHintFallsThrough(t *testing.T) {
	out := DecodeBytes([]byte{'c', 'a', 'f', 0xE9}, "utf-8")
	// Not valid UTF-8, so the chain moves on to windows-1252.
	assert.Equal(t, "café", out)
}

func TestDecodeBytes_ValidUTF8PassesThrough(t *testing.T) {
	assert.Equal(t, "déjà", DecodeBytes([]byte("déjà"), ""))
}

func TestDecodeBytes_NeverEmptyOnGarbage(t *testing.T) {
	out := DecodeBytes([]byte{0xFF, 0xFE, 'a'}, "x-unknown")
	assert.Contains(t, out, "a")
}
