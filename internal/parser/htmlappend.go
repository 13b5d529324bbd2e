package parser

import (
	"html"
	"regexp"
	"strings"
)

var (
	docWrapperRe = regexp.MustCompile(`(?i)</?(?:html|body|head|!\s*DOCTYPE)[^>]*>`)
	tagNameRe    = regexp.MustCompile(`(</?)(\w+)([ >])`)
)

// appendToHTML appends extra content at the end of an HTML snippet, inserting
// before </body> or </html> when present and at EOF otherwise. Plain text is
// HTML-escaped and wrapped in <pre/>; HTML content has enclosing html/body
// wrappers stripped first. Tag names in the base snippet are coerced to
// lowercase so the insertion-point search cannot miss </BODY>.
func appendToHTML(base, content string, asHTML bool) string {
	var block string
	if asHTML {
		block = "\n" + docWrapperRe.ReplaceAllString(content, "") + "\n"
	} else {
		block = "\n<pre>" + html.EscapeString(content) + "</pre>\n"
	}

	base = tagNameRe.ReplaceAllStringFunc(base, strings.ToLower)

	insert := strings.Index(base, "</body>")
	if insert == -1 {
		insert = strings.Index(base, "</html>")
	}
	if insert == -1 {
		return base + block
	}
	return base[:insert] + block + base[insert:]
}
