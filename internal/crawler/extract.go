package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const anchorTextLimit = 200

// Link is an outgoing hyperlink resolved against the page it appeared on.
type Link struct {
	URL        string
	AnchorText string
}

// Page is the structured content pulled from one HTML document.
type Page struct {
	Title    string
	Meta     map[string]string
	Keywords []string
	Links    []Link
}

// PageExtractor turns HTML into a Page.
type PageExtractor struct{}

// NewPageExtractor returns a PageExtractor.
func NewPageExtractor() *PageExtractor {
	return &PageExtractor{}
}

// Extract parses body (fetched from pageURL). Every anchor with an href is
// returned, including ones later filtering would reject.
func (e *PageExtractor) Extract(body, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Meta:  extractMeta(doc),
	}
	page.Keywords = MergeKeywords(lookupFold(page.Meta, "keywords"), ExtractKeywords(body, derivedKeywordLimit))

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		page.Links = append(page.Links, Link{
			URL:        NormalizeURL(href, pageURL),
			AnchorText: clipRunes(strings.TrimSpace(s.Text()), anchorTextLimit),
		})
	})
	return page, nil
}

func extractMeta(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("name", ""))
		if name == "" {
			name = strings.TrimSpace(s.AttrOr("property", ""))
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if name == "" || content == "" {
			return
		}
		meta[name] = content
	})
	return meta
}

func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
