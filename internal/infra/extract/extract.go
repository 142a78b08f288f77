// Package extract turns an HTML page into clean analyzable text.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

const minContentChars = 500

var (
	removeSelector = `script, style, noscript, iframe, svg, canvas, video, audio, img, [hidden], [style*="display: none"], [style*="display:none"]`

	boilerplateSelectors = []string{
		"nav", "header", "footer", "aside",
		".nav", ".navigation", ".menu", ".sidebar",
		".footer", ".header", ".cookie-banner", ".cookie-notice",
		".ad", ".ads", ".advertisement", ".social-share",
		".comments", ".related-posts", ".recommended",
		`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`,
		"#cookie-banner", "#cookie-consent", "#gdpr-banner",
	}

	contentSelectors = []string{
		"main", "article", `[role="main"]`,
		".content", ".main-content", ".post-content", ".article-content",
		".terms", ".privacy", ".legal", ".policy",
		"#content", "#main", "#main-content",
	}

	blockElements = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "main": true,
		"li": true, "ul": true, "ol": true, "br": true, "tr": true, "table": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"blockquote": true, "pre": true, "dd": true, "dt": true, "dl": true,
	}

	spaces = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
)

// PII patterns, most specific first so card and ssn numbers are not
// consumed by the phone pattern.
var piiPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b(?:\d{4}[-.\s]?){3}\d{4}\b`), "[CARD]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`(\+?1[-.\s]?)?(\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},
}

type Options struct {
	RedactPII bool
}

// Page is the extracted document.
type Page struct {
	URL       string   `json:"url"`
	Domain    string   `json:"domain"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	PageTypes []string `json:"pageTypes"`
}

// Extract parses html and returns the cleaned page text with the title
// prepended.
func Extract(html []byte, pageURL string, opts Options) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	h1 := strings.TrimSpace(doc.Find("h1").First().Text())

	body := doc.Find("body")
	body.Find(removeSelector).Remove()
	for _, sel := range boilerplateSelectors {
		body.Find(sel).Remove()
	}

	content := body
	for _, sel := range contentSelectors {
		s := body.Find(sel).First()
		if s.Length() > 0 && len(strings.TrimSpace(s.Text())) > minContentChars {
			content = s
			break
		}
	}

	prefixLists(content)

	var buf strings.Builder
	writeText(&buf, content)
	text := normalize(buf.String())
	if opts.RedactPII {
		text = RedactPII(text)
	}
	if strings.TrimSpace(text) == "" {
		return Page{}, apperr.New(apperr.KindNoContent, "no readable text found on page")
	}

	p := Page{
		URL:       pageURL,
		Title:     title,
		Text:      title + "\n\n" + text,
		PageTypes: DetectPageTypes(pageURL, title, h1),
	}
	if u, err := url.Parse(pageURL); err == nil {
		p.Domain = u.Hostname()
	}
	return p, nil
}

func prefixLists(s *goquery.Selection) {
	s.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		ordered := goquery.NodeName(list) == "ol"
		list.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			prefix := "• "
			if ordered {
				prefix = fmt.Sprintf("%d. ", i+1)
			}
			li.PrependHtml(prefix)
		})
	})
}

// writeText approximates innerText: block elements start on a new line.
func writeText(buf *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			buf.WriteString(c.Text())
		case name == "#comment":
		case blockElements[name]:
			buf.WriteByte('\n')
			writeText(buf, c)
			buf.WriteByte('\n')
		default:
			writeText(buf, c)
		}
	})
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(spaces.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// RedactPII masks emails, phone numbers, SSNs, card numbers and IPs.
func RedactPII(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

var pageTypePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"terms", regexp.MustCompile(`terms|tos|conditions|agreement|eula`)},
	{"privacy", regexp.MustCompile(`privacy|data protection|gdpr`)},
	{"refund", regexp.MustCompile(`refund|return|cancellation|money back`)},
	{"billing", regexp.MustCompile(`billing|payment|pricing|subscription`)},
	{"cookie", regexp.MustCompile(`cookie|tracking`)},
}

// DetectPageTypes guesses what kind of legal page this is.
func DetectPageTypes(pageURL, title, h1 string) []string {
	combined := strings.ToLower(pageURL + " " + title + " " + h1)
	var types []string
	for _, p := range pageTypePatterns {
		if p.re.MatchString(combined) {
			types = append(types, p.name)
		}
	}
	if len(types) == 0 {
		return []string{"unknown"}
	}
	return types
}

// IsRelevant reports whether the page types include a legal document.
func IsRelevant(types []string) bool {
	for _, t := range types {
		switch t {
		case "terms", "privacy", "refund", "billing":
			return true
		}
	}
	return false
}
