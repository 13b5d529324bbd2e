// Package sanitize cleans untrusted HTML mail bodies. It removes dangerous
// markup through an allow-list policy, optionally strips or filters inline
// styles and classes, and tags quoted-reply and signature blocks so a client
// can collapse conversation history.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Options control the individual cleaning passes. The zero value disables
// everything; most callers want Defaults().
type Options struct {
	// StripTags removes every element outside the allow-list (script, style,
	// iframe, object, embed, meta, link, base, frame, noscript, title are
	// always gone) and unwraps html/body wrappers.
	StripTags bool

	// StripStyleAttrs removes style attributes entirely.
	StripStyleAttrs bool

	// SanitizeInlineStyle keeps only whitelisted CSS properties inside style
	// attributes. Ignored when StripStyleAttrs is set.
	SanitizeInlineStyle bool

	// StripClasses removes class attributes.
	StripClasses bool
}

// Defaults returns the options used when storing a message body.
func Defaults() Options {
	return Options{StripTags: true, SanitizeInlineStyle: true}
}

// Placeholder body emitted when the input cannot be parsed at all. Content
// oddities must degrade, never propagate.
const parseFailureBody = "<p>Could not sanitize message content</p>"

// Clean sanitizes an HTML snippet according to opts. It never fails: parse
// errors yield a placeholder body instead of an error.
func Clean(src string, opts Options) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return parseFailureBody
	}

	// Quote detection runs before structural cleaning so that marks end up on
	// nodes the policy keeps.
	MarkQuotes(doc)
	scrubAttrs(doc, opts)

	cleaned := renderBody(doc)
	if opts.StripTags {
		cleaned = tagPolicy.Sanitize(cleaned)
	}
	return cleaned
}

// Allow-list grounded on common HTML mail content: formatting, tables, the
// HTML5 semantic containers, and images (including cid: inline references).
var tagPolicy = buildTagPolicy()

func buildTagPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements(
		"article", "aside", "bdi", "section", "header", "footer", "hgroup",
		"nav", "figure", "figcaption", "main", "span", "div", "font", "center",
	)
	p.AllowTables()
	// Inline images in mail reference attachments by Content-Id.
	p.AllowURLSchemes("http", "https", "mailto", "cid")
	p.AllowAttrs("style", "summary", "title", "width", "height", "align",
		"valign", "border", "bgcolor", "color", "face", "size").Globally()
	// Quote-detection marks and the attachment annotation set by the payload
	// post-processing pass must survive sanitization.
	p.AllowAttrs(quoteAttr, quoteContainerAttr, quoteNodeAttr, "data-filename").Globally()
	p.AllowAttrs("class").Globally()
	return p
}

// renderBody serializes the children of <body>, unwrapping the html/body
// scaffolding the parser adds around snippets.
func renderBody(doc *html.Node) string {
	body := findNode(doc, "body")
	if body == nil {
		var sb strings.Builder
		_ = html.Render(&sb, doc)
		return sb.String()
	}
	var sb strings.Builder
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		_ = html.Render(&sb, child)
	}
	return sb.String()
}

func findNode(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findNode(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// eachElement visits every element node in document order. The node list is
// snapshotted first so visitors may mutate the tree safely.
func eachElement(root *html.Node, visit func(*html.Node)) {
	var nodes []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode {
			nodes = append(nodes, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(root)
	for _, n := range nodes {
		visit(n)
	}
}
