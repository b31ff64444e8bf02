package catalog

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"granth/internal/services"
)

var (
	bookIDQueryRe = regexp.MustCompile(`book_id=(\d+[A-Z]?)`)
	bookIDPathRe  = regexp.MustCompile(`/(\d{3,}[A-Z]?)/index\.pdf`)
)

// Parse extracts book descriptors from a catalog page. The page lists books
// inside a div with class "books_from_db"; each li carries title, author,
// and download spans. Entries without a resolvable key or download link are
// skipped.
func Parse(r io.Reader, baseURL string) ([]Descriptor, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "parse", "parse catalog markup", err)
	}

	base, _ := url.Parse(baseURL)

	var entries []Descriptor
	for _, listDiv := range findAll(root, isBookList) {
		for _, item := range findAll(listDiv, isBookItem) {
			entry := parseItem(item, base)
			if entry.Key == "" || entry.PDFURL == "" {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func parseItem(item *html.Node, base *url.URL) Descriptor {
	var entry Descriptor
	if span := findFirst(item, hasClass("titlespan")); span != nil {
		entry.Title = collapseText(span)
	}
	if span := findFirst(item, hasClass("authorspan")); span != nil {
		entry.Author = collapseText(span)
	}
	if span := findFirst(item, hasClass("downloadpdf")); span != nil {
		if anchor := findFirst(span, isElement("a")); anchor != nil {
			href := attr(anchor, "href")
			entry.PDFURL = resolveURL(base, href)
			entry.Key = extractKey(href)
		}
	}
	if entry.Key == "" {
		// Some pages carry the identifier in the li id attribute instead.
		entry.Key = strings.TrimPrefix(attr(item, "id"), "li_id")
		if !keyLike(entry.Key) {
			entry.Key = ""
		}
	}
	return entry
}

func extractKey(href string) string {
	if m := bookIDQueryRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := bookIDPathRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func keyLike(value string) bool {
	if value == "" {
		return false
	}
	digits := 0
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'A' && r <= 'Z' && i == len(value)-1:
		default:
			return false
		}
	}
	return digits > 0
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

func isBookList(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "div" && nodeHasClass(n, "books_from_db")
}

func isBookItem(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "li"
}

func isElement(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && nodeHasClass(n, class)
	}
}

func nodeHasClass(n *html.Node, class string) bool {
	for _, value := range strings.Fields(attr(n, "class")) {
		if value == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) && root.Type == html.ElementNode {
		return root
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
			// Matches do not nest in this markup; keep walking anyway so
			// multiple list divs on one page are all collected.
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out
}

func collapseText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
