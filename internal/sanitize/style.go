package sanitize

import (
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// CSS properties allowed to survive inline-style sanitization. Everything
// else is dropped.
var styleWhitelist = buildStyleWhitelist()

func buildStyleWhitelist() map[string]bool {
	props := []string{
		"font-size", "font-family", "font-weight", "background-color", "color",
		"text-align", "line-height", "letter-spacing", "text-transform",
		"text-decoration", "opacity", "float", "vertical-align", "display",
		"padding", "padding-top", "padding-left", "padding-bottom", "padding-right",
		"margin", "margin-top", "margin-left", "margin-bottom", "margin-right",
		"white-space",
		// box model
		"border", "border-color", "border-radius", "border-style", "border-width",
		"border-top", "border-bottom",
		"height", "width", "max-width", "min-width", "min-height",
		// tables
		"border-collapse", "border-spacing", "caption-side", "empty-cells",
		"table-layout",
	}
	whitelist := make(map[string]bool, len(props))
	for _, p := range props {
		whitelist[p] = true
	}
	for _, position := range []string{"top", "bottom", "left", "right"} {
		for _, attribute := range []string{"style", "color", "width", "left-radius", "right-radius"} {
			whitelist["border-"+position+"-"+attribute] = true
		}
	}
	return whitelist
}

// scrubAttrs applies the class and style options to every element.
func scrubAttrs(doc *html.Node, opts Options) {
	if !opts.StripClasses && !opts.StripStyleAttrs && !opts.SanitizeInlineStyle {
		return
	}
	eachElement(doc, func(el *html.Node) {
		if opts.StripClasses {
			removeAttr(el, "class")
		}
		if opts.StripStyleAttrs {
			removeAttr(el, "style")
			return
		}
		if opts.SanitizeInlineStyle {
			sanitizeStyleAttr(el)
		}
	})
}

// sanitizeStyleAttr rewrites el's style attribute keeping only whitelisted
// properties. The attribute disappears when nothing valid remains.
func sanitizeStyleAttr(el *html.Node) {
	styling := getAttr(el, "style")
	if styling == "" {
		return
	}
	declarations, err := parser.ParseDeclarations(styling)
	if err != nil {
		removeAttr(el, "style")
		return
	}
	var kept []string
	for _, decl := range declarations {
		prop := strings.ToLower(decl.Property)
		if styleWhitelist[prop] {
			kept = append(kept, prop+":"+decl.Value)
		}
	}
	if len(kept) == 0 {
		removeAttr(el, "style")
		return
	}
	setAttr(el, "style", strings.Join(kept, "; "))
}
