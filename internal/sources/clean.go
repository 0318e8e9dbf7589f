// CLAUDE:SUMMARY HTML cleanup helpers shared by collectors: markdown conversion, tag stripping, text extraction.
package sources

import (
	stdhtml "html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

var stripPolicy = bluemonday.StrictPolicy()

// ToMarkdown converts an HTML fragment to markdown, falling back to a plain
// tag strip when conversion fails or produces nothing.
func ToMarkdown(htmlSrc, domain string) string {
	result, err := mdConverter.ConvertString(htmlSrc, converter.WithDomain(domain))
	if err != nil || strings.TrimSpace(result) == "" {
		return StripHTML(htmlSrc)
	}
	return strings.TrimSpace(result)
}

// StripHTML removes every tag and unescapes entities. Used before
// fingerprinting so markup differences never defeat content dedup.
func StripHTML(s string) string {
	return strings.TrimSpace(stdhtml.UnescapeString(stripPolicy.Sanitize(s)))
}

// ExtractText walks an HTML fragment and joins its text nodes. Falls back
// to StripHTML when the fragment does not parse.
func ExtractText(htmlSrc string) string {
	node, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return StripHTML(htmlSrc)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}
