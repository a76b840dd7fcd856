package extractor

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Element is one image-bearing element of a parsed page.
type Element interface {
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
}

// Document is the only capability the extractor needs from a parsed page:
// listing its image-bearing elements in document order.
type Document interface {
	ImageElements() []Element
}

// imageSelector matches the elements treated as page images.
var imageSelector = cascadia.MustCompile("img")

// HTMLDocument is a Document backed by golang.org/x/net/html and goquery.
type HTMLDocument struct {
	doc *goquery.Document
}

// NewHTMLDocument parses markup from r.
func NewHTMLDocument(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse html: %w", err)
	}
	return &HTMLDocument{doc: goquery.NewDocumentFromNode(root)}, nil
}

// ParseHTML is a convenience wrapper around NewHTMLDocument for string input.
func ParseHTML(markup string) (*HTMLDocument, error) {
	return NewHTMLDocument(strings.NewReader(markup))
}

// ImageElements returns every <img> element in document order.
func (d *HTMLDocument) ImageElements() []Element {
	sel := d.doc.FindMatcher(imageSelector)
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, s)
	})
	return elements
}
