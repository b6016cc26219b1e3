// Package extract normalizes fetched page bodies before snapshotting.
//
// Pages monitored in text mode are converted from HTML to markdown so that
// markup churn (attribute reordering, tracking parameters, whitespace) does
// not register as content change.
package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor converts HTML to markdown and pulls metadata out of pages.
type Extractor struct {
	md *converter.Converter
}

// New builds an Extractor with the standard plugin set.
func New() *Extractor {
	return &Extractor{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts HTML to markdown. If conversion fails or produces
// empty output, the input is returned unchanged so a snapshot is never lost
// to a converter bug.
func (e *Extractor) Markdown(htmlSrc, pageURL string) string {
	if htmlSrc == "" {
		return ""
	}
	result, err := e.md.ConvertString(htmlSrc, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(result) == "" {
		return htmlSrc
	}
	return strings.TrimSpace(result)
}

// Title extracts the <title> text from an HTML document. Returns "" when
// the document has no title or does not parse as HTML.
func Title(htmlSrc string) string {
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
