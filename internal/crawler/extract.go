package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// anchorHref matches the href attribute of an anchor tag, single or double quoted.
var anchorHref = regexp.MustCompile(`<a\s+(?:[^>]*?\s+)?href\s*=\s*(?:'(.*?)'|"(.*?)")`)

// Origin reduces u to scheme, userinfo and host with a root path. Relative
// hrefs are resolved against it.
func Origin(u *url.URL) *url.URL {
	return &url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   "/",
	}
}

// RegexExtractor scans raw markup for anchor hrefs without building a DOM.
type RegexExtractor struct{}

// NewRegexExtractor returns the default, lightweight extractor.
func NewRegexExtractor() RegexExtractor {
	return RegexExtractor{}
}

// Extract returns same-host links in order of occurrence, duplicates included.
func (RegexExtractor) Extract(body string, origin *url.URL) []*url.URL {
	var out []*url.URL
	for _, m := range anchorHref.FindAllStringSubmatch(body, -1) {
		href := m[1]
		if href == "" {
			href = m[2]
		}
		if u, ok := resolveHref(href, origin); ok {
			out = append(out, u)
		}
	}
	return out
}

// HTMLExtractor tokenizes the body with golang.org/x/net/html, which copes
// with unquoted attributes, entities and odd whitespace.
type HTMLExtractor struct{}

// NewHTMLExtractor returns the tokenizer-backed extractor.
func NewHTMLExtractor() HTMLExtractor {
	return HTMLExtractor{}
}

// Extract returns same-host links in order of occurrence, duplicates included.
func (HTMLExtractor) Extract(body string, origin *url.URL) []*url.URL {
	var out []*url.URL
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key != "href" {
					continue
				}
				if u, ok := resolveHref(attr.Val, origin); ok {
					out = append(out, u)
				}
				break
			}
		}
	}
}

// DOMExtractor parses the full document with goquery and selects a[href].
type DOMExtractor struct{}

// NewDOMExtractor returns the goquery-backed extractor.
func NewDOMExtractor() DOMExtractor {
	return DOMExtractor{}
}

// Extract returns same-host links in document order, duplicates included.
// A body that cannot be parsed yields no links.
func (DOMExtractor) Extract(body string, origin *url.URL) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if u, ok := resolveHref(href, origin); ok {
			out = append(out, u)
		}
	})
	return out
}

// NewExtractor picks an extractor by name: "html", "dom", or the default
// regex scanner for anything else.
func NewExtractor(name string) Extractor {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "html":
		return NewHTMLExtractor()
	case "dom":
		return NewDOMExtractor()
	default:
		return NewRegexExtractor()
	}
}

func resolveHref(href string, origin *url.URL) (*url.URL, bool) {
	if strings.HasPrefix(href, "#") {
		return nil, false
	}
	var (
		u   *url.URL
		err error
	)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		u, err = url.Parse(href)
	} else {
		u, err = origin.Parse(href)
	}
	if err != nil {
		return nil, false
	}
	if !sameHost(u, origin) {
		return nil, false
	}
	return u, true
}

func sameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname())
}
