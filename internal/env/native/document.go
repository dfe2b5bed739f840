package native

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed hosting document.
// Element values follow the DOM: an <input> yields its value attribute,
// any other element yields its text content.
type Document struct {
	elements map[string]string
}

// LoadDocument parses an HTML document from r.
func LoadDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse HTML document: %w", err)
	}
	d := &Document{elements: make(map[string]string)}
	d.index(root)
	return d, nil
}

// LoadDocumentFile parses the HTML document stored at path.
func LoadDocumentFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open document: %w", err)
	}
	defer f.Close()
	return LoadDocument(f)
}

// FetchDocument downloads and parses the HTML document served at url.
func FetchDocument(ctx context.Context, client *http.Client, url string) (*Document, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch document: unexpected status %s", resp.Status)
	}
	return LoadDocument(resp.Body)
}

// ElementValue implements env.Document.
func (d *Document) ElementValue(id string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.elements[id]
	return v, ok
}

func (d *Document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		if id, ok := attr(n, "id"); ok && id != "" {
			// getElementById returns the first match in tree order.
			if _, seen := d.elements[id]; !seen {
				d.elements[id] = value(n)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

func value(n *html.Node) string {
	if n.DataAtom == atom.Input {
		v, _ := attr(n, "value")
		return v
	}
	var b strings.Builder
	text(n, &b)
	return b.String()
}

func text(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text(c, b)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
