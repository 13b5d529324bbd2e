package parser

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"golang.org/x/net/html"

	"github.com/felo/mailgate/internal/mimeheader"
	"github.com/felo/mailgate/internal/sanitize"
)

// Class marking system notification markup that must not re-enter a thread
// when a notification email is replied to.
const notificationMarker = "o_mail_notification"

// extractPayload walks the MIME tree and produces the unified HTML body plus
// the ordered attachment list. When saveOriginal is set the full raw message
// is always captured as an attachment.
//
// Leaf parts are classified in priority order: inline attachment (filename +
// content-id), explicit attachment (filename or attachment disposition),
// text/plain appended as preformatted content, text/html kept as the body,
// anything else an explicit attachment. In multipart/alternative only the
// last-seen HTML part wins; plain text is used only if no HTML was found.
// multipart/mixed may carry several HTML parts, which are appended.
func extractPayload(ent *message.Entity, raw []byte, saveOriginal bool) (string, []Attachment) {
	var attachments []Attachment
	if saveOriginal {
		attachments = append(attachments, Attachment{
			Filename: "original_email.eml",
			Content:  raw,
			Info:     map[string]string{},
		})
	}

	body := ""
	ctype, params, _ := ent.Header.ContentType()

	if strings.HasPrefix(ctype, "text/") {
		body = decodeTextBody(ent.Body, params["charset"])
		if ctype == "text/plain" {
			body = appendToHTML("", body, false)
		}
		return postprocessPayload(body, attachments)
	}

	alternative, mixed := false, false
	htmlPart := ""
	_ = ent.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			// Broken subtree: skip it, the rest of the message still counts.
			return nil
		}

		partType, partParams, _ := part.Header.ContentType()
		switch partType {
		case "multipart/alternative":
			alternative = true
		case "multipart/mixed":
			mixed = true
		}
		if strings.HasPrefix(partType, "multipart/") {
			return nil // container, not content
		}

		filename := partFilename(part.Header)
		cid := strings.Trim(part.Header.Get("Content-Id"), "<> \t")
		disposition, _, _ := part.Header.ContentDisposition()

		switch {
		case filename != "" && cid != "":
			content, _ := io.ReadAll(part.Body)
			attachments = append(attachments, Attachment{
				Filename: filename,
				Content:  content,
				Info:     map[string]string{"cid": cid},
			})

		case filename != "" || disposition == "attachment":
			if filename == "" {
				filename = "attachment"
			}
			content, _ := io.ReadAll(part.Body)
			attachments = append(attachments, Attachment{Filename: filename, Content: content, Info: map[string]string{}})

		case partType == "text/plain":
			if alternative && body != "" {
				return nil // the HTML alternative wins
			}
			body = appendToHTML(body, decodeTextBody(part.Body, partParams["charset"]), false)

		case partType == "text/html":
			appendContent := !alternative || (htmlPart != "" && mixed)
			htmlPart = decodeTextBody(part.Body, partParams["charset"])
			if appendContent {
				body = appendToHTML(body, htmlPart, true)
			} else {
				body = htmlPart
			}
			// Only classes are stripped here; the full sanitization pass is
			// the caller's responsibility.
			body = sanitize.Clean(body, sanitize.Options{StripClasses: true})

		case strings.HasPrefix(partType, "message/"):
			// Delivery-status reports and embedded originals feed the bounce
			// scan, not the attachment list.

		default:
			content, _ := io.ReadAll(part.Body)
			attachments = append(attachments, Attachment{Filename: "attachment", Content: content, Info: map[string]string{}})
		}
		return nil
	})

	return postprocessPayload(body, attachments)
}

// decodeTextBody reads a text part. go-message already converted known
// charsets to UTF-8; anything else goes through the fallback chain with the
// declared charset as hint.
func decodeTextBody(r io.Reader, charsetHint string) string {
	data, _ := io.ReadAll(r)
	if utf8.Valid(data) {
		return string(data)
	}
	return mimeheader.DecodeBytes(data, charsetHint)
}

// partFilename resolves a part's filename from Content-Disposition or the
// legacy Content-Type name parameter, decoding any RFC 2047 words.
func partFilename(h message.Header) string {
	_, dispParams, _ := h.ContentDisposition()
	filename := dispParams["filename"]
	if filename == "" {
		_, typeParams, _ := h.ContentType()
		filename = typeParams["name"]
	}
	if filename == "" {
		return ""
	}
	return strings.TrimSpace(mimeheader.Decode(filename))
}

// postprocessPayload re-parses the assembled body to drop notification
// markers and annotate inline images with the filename of their matching
// cid attachment, so a renderer can show "see attached image X". The body is
// left untouched when nothing had to change.
func postprocessPayload(body string, attachments []Attachment) (string, []Attachment) {
	if body == "" {
		return body, attachments
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body, attachments
	}

	changed := false
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if nodeHasMarker(n) {
				toRemove = append(toRemove, n)
				changed = true
			}
			if n.Data == "img" {
				if src := nodeAttr(n, "src"); strings.HasPrefix(src, "cid:") {
					cid := strings.SplitN(src, ":", 2)[1]
					if name, ok := attachmentByCID(attachments, cid); ok {
						n.Attr = append(n.Attr, html.Attribute{Key: "data-filename", Val: name})
						changed = true
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if !changed {
		return body, attachments
	}
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var sb strings.Builder
	if bodyNode := findBodyNode(doc); bodyNode != nil {
		for child := bodyNode.FirstChild; child != nil; child = child.NextSibling {
			_ = html.Render(&sb, child)
		}
	} else {
		_ = html.Render(&sb, doc)
	}
	return sb.String(), attachments
}

func nodeHasMarker(n *html.Node) bool {
	return strings.Contains(nodeAttr(n, "class"), notificationMarker) ||
		strings.Contains(nodeAttr(n, "summary"), notificationMarker)
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func attachmentByCID(attachments []Attachment, cid string) (string, bool) {
	for _, a := range attachments {
		if a.Info["cid"] == cid {
			return a.Filename, true
		}
	}
	return "", false
}

func findBodyNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findBodyNode(child); found != nil {
			return found
		}
	}
	return nil
}
