// Package address parses, validates and canonically formats email address
// lists (RFC 5322 section 3.2.3, RFC 2822 section 3.4). Domains are
// IDNA-encoded on output and non-ASCII display names are RFC 2047 encoded.
package address

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/felo/mailgate/internal/mimeheader"
)

// Address is a parsed (display name, address) pair.
type Address struct {
	Name  string
	Email string
}

// atext per RFC 5322 section 3.2.3, used to validate local parts.
var atextRe = regexp.MustCompile(`^[a-zA-Z0-9!#$%&'*+\-/=?^_` + "`" + `{|}~]+(\.[a-zA-Z0-9!#$%&'*+\-/=?^_` + "`" + `{|}~]+)*$`)

// Loose address-like token matcher for inputs net/mail refuses to parse.
var looseAddrRe = regexp.MustCompile(`[^\s<>,;"]+@[^\s<>,;"]+`)

var escapeRe = regexp.MustCompile(`[\\"]`)

// Split extracts every address-like token from text. Tokens without an '@'
// are discarded, matching the strict addr-spec requirement.
func Split(text string) []Address {
	if text == "" {
		return nil
	}
	var out []Address
	parsed, err := mail.ParseAddressList(mimeheader.Decode(text))
	if err == nil {
		for _, a := range parsed {
			if strings.Contains(a.Address, "@") {
				out = append(out, Address{Name: a.Name, Email: a.Address})
			}
		}
		return out
	}
	// Malformed lists still carry recoverable addresses; scan for bare tokens
	// the way lenient mail clients do.
	for _, token := range looseAddrRe.FindAllString(text, -1) {
		out = append(out, Address{Email: strings.Trim(token, ".")})
	}
	return out
}

// Emails returns just the address part of every token found in text.
func Emails(text string) []string {
	addrs := Split(text)
	emails := make([]string, 0, len(addrs))
	for _, a := range addrs {
		emails = append(emails, a.Email)
	}
	return emails
}

// Format pretty-prints a (name, email) pair into its wire form.
//
// The domain is punycode-encoded when non-ASCII (RFC 5890). A non-ASCII name
// is base64 encoded-word wrapped (RFC 2047); an ASCII name is quoted with
// backslash escapes (RFC 2822 section 3.4). A falsy name yields the bare
// address.
func Format(name, email string) string {
	local, domain := splitLocalDomain(email)
	if !isASCII(domain) {
		if encoded, err := idna.ToASCII(domain); err == nil {
			domain = encoded
		}
	}
	if name == "" {
		return fmt.Sprintf("%s@%s", local, domain)
	}
	if !isASCII(name) {
		encoded := base64.StdEncoding.EncodeToString([]byte(name))
		return fmt.Sprintf("=?utf-8?b?%s?= <%s@%s>", encoded, local, domain)
	}
	return fmt.Sprintf(`"%s" <%s@%s>`, escapeRe.ReplaceAllString(name, `\$0`), local, domain)
}

// SplitAndFormat extracts all addresses from text and rebuilds each in
// canonical display form.
func SplitAndFormat(text string) []string {
	addrs := Split(text)
	formatted := make([]string, 0, len(addrs))
	for _, a := range addrs {
		formatted = append(formatted, Format(a.Name, a.Email))
	}
	return formatted
}

// Normalize returns the single lowercase address contained in text. It
// reports failure for zero or multiple matches: callers like bounce-target
// matching must not silently pick one of several candidates.
func Normalize(text string) (string, bool) {
	emails := Emails(text)
	if len(emails) != 1 {
		return "", false
	}
	return strings.ToLower(emails[0]), true
}

// ValidLocalPart reports whether s is a dot-atom-text local part.
func ValidLocalPart(s string) bool {
	return atextRe.MatchString(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// splitLocalDomain splits on the last '@' so quoted local parts containing
// '@' keep their domain intact.
func splitLocalDomain(email string) (string, string) {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return email, ""
	}
	return email[:idx], email[idx+1:]
}
