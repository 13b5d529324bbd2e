package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Attributes used to tag quoted history so a client can collapse it.
const (
	quoteAttr          = "data-o-mail-quote"
	quoteContainerAttr = "data-o-mail-quote-container"
	quoteNodeAttr      = "data-o-mail-quote-node"
)

// Signature delimiter at the start of a line: "-- " on its own.
var signatureBeginRe = regexp.MustCompile(`(?m)(?:^|\n)--[ ]?$`)

// Runs of ">"-quoted lines, or a "--" signature followed by anything.
var quotedTextRe = regexp.MustCompile(`(?:\n>+[^\n\r]*)+|(?:^|\n)--[ ]?[\r\n]{1,2}[\s\S]+`)

// MarkQuotes walks the parsed document and tags elements containing quoted
// history from previous mails in the thread: known webmail quote containers,
// blockquotes, ">"-quoted text runs and signature blocks. Marking happens in
// two passes over the tree (mark, then propagate containment), so no pass
// mutates the structure it is iterating.
func MarkQuotes(doc *html.Node) {
	eachElement(doc, markQuoteElement)
	propagateQuoteMarks(doc, false)
}

// markQuoteElement applies the per-element quote heuristics.
func markQuoteElement(el *html.Node) {
	class := getAttr(el, "class")
	id := getAttr(el, "id")

	// Webmail-specific containers: gmail/yahoo wrappers, outlook's
	// stopSpelling hr, msoffice SkyDrive placeholders.
	known := strings.Contains(class, "gmail_extra") ||
		strings.Contains(class, "gmail_quote") ||
		strings.Contains(class, "yahoo_quoted") ||
		strings.Contains(class, "SkyDrivePlaceholder") ||
		(el.Data == "hr" && (strings.Contains(class, "stopSpelling") || strings.Contains(id, "stopSpelling")))
	if known {
		markWithContainer(el)
	}

	// HTML signature: an element opening with "--" followed by a <br>.
	if leading := leadingText(el); leading != "" {
		if hasChildElement(el, "br") && signatureBeginRe.MatchString(leading) {
			markWithContainer(el)
		}
	}

	// Text-based quotes (">", ">>") and full signature blocks get wrapped in
	// marked spans so only the quoted run collapses, not the whole element.
	if getAttr(el, quoteAttr) == "" {
		wrapQuotedText(el)
	}

	if el.Data == "blockquote" {
		// A blockquote is an independent quote node: its mark does not leak
		// to siblings through the container rule.
		setAttr(el, quoteNodeAttr, "1")
		setAttr(el, quoteAttr, "1")
	}
}

func markWithContainer(el *html.Node) {
	setAttr(el, quoteAttr, "1")
	if parent := el.Parent; parent != nil && parent.Type == html.ElementNode {
		setAttr(parent, quoteContainerAttr, "1")
	}
}

// propagateQuoteMarks inherits the quote mark down through a marked container
// unless the child is itself an independent quote node.
func propagateQuoteMarks(n *html.Node, inherited bool) {
	if n.Type == html.ElementNode {
		if inherited && getAttr(n, quoteNodeAttr) == "" {
			setAttr(n, quoteAttr, "1")
		}
		inherited = getAttr(n, quoteAttr) != "" || getAttr(n, quoteContainerAttr) != ""
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		propagateQuoteMarks(child, inherited)
	}
}

// wrapQuotedText splits the direct text children of el around quoted runs and
// wraps each run in a marked span.
func wrapQuotedText(el *html.Node) {
	var texts []*html.Node
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode && quotedTextRe.MatchString(child.Data) {
			texts = append(texts, child)
		}
	}
	for _, text := range texts {
		splitTextNode(el, text)
	}
}

func splitTextNode(el, text *html.Node) {
	data := text.Data
	matches := quotedTextRe.FindAllStringIndex(data, -1)
	if len(matches) == 0 {
		return
	}

	var replacement []*html.Node
	last := 0
	for _, m := range matches {
		if m[0] > last {
			replacement = append(replacement, &html.Node{Type: html.TextNode, Data: data[last:m[0]]})
		}
		span := &html.Node{
			Type: html.ElementNode,
			Data: "span",
			Attr: []html.Attribute{{Key: quoteAttr, Val: "1"}},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: data[m[0]:m[1]]})
		replacement = append(replacement, span)
		last = m[1]
	}
	if last < len(data) {
		replacement = append(replacement, &html.Node{Type: html.TextNode, Data: data[last:]})
	}

	for _, node := range replacement {
		el.InsertBefore(node, text)
	}
	el.RemoveChild(text)
}

// leadingText returns the text content preceding the first child element.
func leadingText(el *html.Node) string {
	var sb strings.Builder
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.TextNode {
			break
		}
		sb.WriteString(child.Data)
	}
	return sb.String()
}

func hasChildElement(el *html.Node, tag string) bool {
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == tag {
			return true
		}
	}
	return false
}
