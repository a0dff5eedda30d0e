package probe

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// page holds what the probes need from an HTML document.
type page struct {
	Title     string
	Generator string
	Links     []string
	Images    []string
	Meta      map[string]string
	Emails    []string
	Onions    []string
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// parsePage parses an HTML document fetched from base. Relative links and
// image sources are resolved against base.
func parsePage(base *url.URL, content io.Reader) (*page, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	p := &page{Meta: make(map[string]string)}
	var text strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			p.element(base, n)
		case html.TextNode, html.CommentNode:
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	all := text.String()
	for _, link := range p.Links {
		if strings.HasPrefix(link, "mailto:") {
			all += " " + strings.TrimPrefix(link, "mailto:")
		}
	}

	emails := emailPattern.FindAllString(all, -1)
	for i := range emails {
		emails[i] = strings.ToLower(emails[i])
	}
	p.Emails = dedupe(emails)
	p.Onions = extractOnions(all + " " + strings.Join(p.Links, " "))
	p.Links = dedupe(p.Links)
	p.Images = dedupe(p.Images)
	p.Generator = p.Meta["generator"]
	return p, nil
}

func (p *page) element(base *url.URL, n *html.Node) {
	switch n.Data {
	case "title":
		if p.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			p.Title = strings.TrimSpace(n.FirstChild.Data)
		}
	case "a":
		if href := strings.TrimSpace(attr(n, "href")); strings.HasPrefix(href, "mailto:") {
			p.Links = append(p.Links, href)
		} else if link := resolve(base, href); link != "" {
			p.Links = append(p.Links, link)
		}
	case "img":
		if src := resolve(base, attr(n, "src")); src != "" {
			p.Images = append(p.Images, src)
		}
	case "meta":
		name := attr(n, "name")
		if name == "" {
			name = attr(n, "property")
		}
		if content := attr(n, "content"); name != "" && content != "" {
			p.Meta[strings.ToLower(name)] = content
		}
	}
}

// resolve resolves href against base. Non-navigable links resolve to "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(href, prefix) {
			return ""
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
