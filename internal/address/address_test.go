package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_NameAndAddress(t *testing.T) {
	addrs := Split(`"John Doe" <john@example.com>, jane@example.com`)

	require.Len(t, addrs, 2)
	assert.Equal(t, "John Doe", addrs[0].Name)
	assert.Equal(t, "john@example.com", addrs[0].Email)
	assert.Equal(t, "", addrs[1].Name)
	assert.Equal(t, "jane@example.com", addrs[1].Email)
}

func TestSplit_DiscardsTokensWithoutAt(t *testing.T) {
	addrs := Split("undisclosed-recipients, real@example.com")
	require.Len(t, addrs, 1)
	assert.Equal(t, "real@example.com", addrs[0].Email)
}

func TestSplit_EncodedDisplayName(t *testing.T) {
	addrs := Split("=?UTF-8?Q?Andr=C3=A9?= <andre@example.com>")
	require.Len(t, addrs, 1)
	assert.Equal(t, "André", addrs[0].Name)
	assert.Equal(t, "andre@example.com", addrs[0].Email)
}

func TestSplit_MalformedListStillFindsTokens(t *testing.T) {
	addrs := Split("garbage <<>> one@example.com ;; two@example.org")
	require.Len(t, addrs, 2)
	assert.Equal(t, "one@example.com", addrs[0].Email)
	assert.Equal(t, "two@example.org", addrs[1].Email)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split(""))
}

func TestFormat_PlainName(t *testing.T) {
	assert.Equal(t, `"John Doe" <johndoe@example.com>`, Format("John Doe", "johndoe@example.com"))
}

func TestFormat_NoName(t *testing.T) {
	assert.Equal(t, "johndoe@example.com", Format("", "johndoe@example.com"))
}

func TestFormat_EscapesQuotesAndBackslashes(t *testing.T) {
	assert.Equal(t, `"John \"Doe\"" <j@example.com>`, Format(`John "Doe"`, "j@example.com"))
	assert.Equal(t, `"back\\slash" <j@example.com>`, Format(`back\slash`, "j@example.com"))
}

func TestFormat_NonASCIINameIsEncoded(t *testing.T) {
	formatted := Format("Héloïse", "h@example.com")
	assert.True(t, strings.HasPrefix(formatted, "=?utf-8?b?"), formatted)
	assert.True(t, strings.HasSuffix(formatted, "?= <h@example.com>"), formatted)
}

func TestFormat_IDNADomain(t *testing.T) {
	formatted := Format("", "user@bücher.de")
	assert.Equal(t, "user@xn--bcher-kva.de", formatted)
}

func TestRoundTrip_SplitThenFormat(t *testing.T) {
	addrs := Split(`"Mixed Case" <MiXeD@Example.COM>`)
	require.Len(t, addrs, 1)

	formatted := Format(addrs[0].Name, addrs[0].Email)
	reparsed := Split(formatted)
	require.Len(t, reparsed, 1)
	assert.Equal(t, strings.ToLower(addrs[0].Email), strings.ToLower(reparsed[0].Email))
}

func TestNormalize_SingleAddress(t *testing.T) {
	got, ok := Normalize("Name <NaMe@DoMaIn.CoM>")
	require.True(t, ok)
	assert.Equal(t, "name@domain.com", got)
}

func TestNormalize_MultipleAddressesFail(t *testing.T) {
	_, ok := Normalize("Name <a@b.com>, Name2 <c@d.com>")
	assert.False(t, ok, "ambiguous input must not silently pick one address")
}

func TestNormalize_NoAddressFails(t *testing.T) {
	_, ok := Normalize("nothing here")
	assert.False(t, ok)
}

func TestValidLocalPart(t *testing.T) {
	assert.True(t, ValidLocalPart("jobs"))
	assert.True(t, ValidLocalPart("first.last+tag"))
	assert.False(t, ValidLocalPart("two..dots"))
	assert.False(t, ValidLocalPart("spaced name"))
}
