package extract

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/haowjy/luminote-go"
)

// Article types.
const (
	ArticleNews      = "news"
	ArticleBlog      = "blog"
	ArticleTechnical = "technical"
)

// Metadata describes an extracted page. Fields that do not apply to the
// page's article type are left empty.
type Metadata struct {
	ArticleType   string   `json:"article_type,omitempty"`
	Author        string   `json:"author,omitempty"`
	Byline        string   `json:"byline,omitempty"`
	DatePublished string   `json:"date_published,omitempty"`
	PullQuotes    []string `json:"pull_quotes,omitempty"`
	Tags          []string `json:"tags,omitempty"` // blogs only

	// Technical articles only
	CodeLanguages      []string     `json:"code_languages,omitempty"`
	HeadingStructure   *HeadingNode `json:"heading_structure,omitempty"`
	ReferenceLinks     []Link       `json:"reference_links,omitempty"`
	IsAPIDocumentation bool         `json:"is_api_documentation,omitempty"`

	ExtractionMethod string `json:"extraction_method"`
	BlockCount       int    `json:"block_count"`
	CacheHit         bool   `json:"cache_hit"`
}

// HeadingNode is one level of the heading outline. The root node has type
// "root" and no text.
type HeadingNode struct {
	Type     string         `json:"type"`
	Level    int            `json:"level,omitempty"`
	Text     string         `json:"text,omitempty"`
	ID       string         `json:"id,omitempty"`
	Children []*HeadingNode `json:"children"`
}

// Link is a reference link found under a "References" style heading.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

var (
	apiDocClass      = regexp.MustCompile(`(?i)api[-_]?(doc|reference|endpoint)`)
	bylineWord       = regexp.MustCompile(`(?i)\bby\b`)
	httpMethods      = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}
	technicalTitle   = []string{"api", "documentation", "guide", "tutorial", "reference", "sdk", "library"}
	referenceHeading = []string{"reference", "see also", "further reading", "links"}
)

// extractMetadata reads page-level metadata from the full page and
// combines it with what the blocks show.
func extractMetadata(page *goquery.Document, blocks []luminote.ContentBlock) Metadata {
	ld := jsonLD(page)

	var meta Metadata
	meta.ArticleType = articleType(page, ld)
	if meta.ArticleType == "" && isTechnical(page, ld) {
		meta.ArticleType = ArticleTechnical
	}

	if meta.ArticleType == ArticleTechnical {
		meta.CodeLanguages = codeLanguages(blocks)
		if outline := headingStructure(blocks); len(outline.Children) > 0 {
			meta.HeadingStructure = outline
		}
		meta.ReferenceLinks = referenceLinks(page)
		meta.IsAPIDocumentation = isAPIDocumentation(page)
	}

	meta.Author = author(page, ld)
	meta.Byline = byline(page)
	meta.DatePublished = datePublished(page, ld)
	meta.PullQuotes = pullQuotes(page, blocks)
	if meta.ArticleType == ArticleBlog {
		meta.Tags = tags(page, ld)
	}
	return meta
}

// jsonLD decodes the first JSON-LD script when it is a single object.
func jsonLD(page *goquery.Document) map[string]any {
	script := page.Find(`script[type="application/ld+json"]`).First()
	if script.Length() == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
		return nil
	}
	return data
}

func ldString(ld map[string]any, key string) string {
	s, _ := ld[key].(string)
	return s
}

func articleType(page *goquery.Document, ld map[string]any) string {
	switch ldString(ld, "@type") {
	case "NewsArticle":
		return ArticleNews
	case "BlogPosting":
		return ArticleBlog
	}

	og := page.Find(`meta[property="og:type"]`).First()
	if og.Length() == 0 {
		return ""
	}
	content := strings.ToLower(og.AttrOr("content", ""))
	switch {
	case strings.Contains(content, "blog"):
		return ArticleBlog
	case strings.Contains(content, "article"):
		return ArticleNews
	}
	return ""
}

// isTechnical looks for a TechArticle schema, three or more code blocks, or
// a documentation-style title over a page with several section headings.
func isTechnical(page *goquery.Document, ld map[string]any) bool {
	if ldString(ld, "@type") == "TechArticle" {
		return true
	}

	codeBlocks := page.Find("pre").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("code").Length() > 0
	}).Length()
	codeBlocks += page.Find("code").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("pre").Length() == 0
	}).Length()
	if codeBlocks >= 3 {
		return true
	}

	title := page.Find("title").First()
	if title.Length() > 0 && containsAny(strings.ToLower(title.Text()), technicalTitle) {
		return page.Find("h2, h3, h4").Length() >= 4
	}
	return false
}

func codeLanguages(blocks []luminote.ContentBlock) []string {
	var langs []string
	for _, b := range blocks {
		if b.Type != luminote.BlockTypeCode {
			continue
		}
		if lang, ok := b.Metadata["language"].(string); ok && !slices.Contains(langs, lang) {
			langs = append(langs, lang)
		}
	}
	slices.Sort(langs)
	return langs
}

// headingStructure nests headings under the nearest preceding heading of a
// lower level. A skipped level (h1 then h3) still nests.
func headingStructure(blocks []luminote.ContentBlock) *HeadingNode {
	root := &HeadingNode{Type: "root", Children: []*HeadingNode{}}
	stack := []*HeadingNode{root}

	for _, b := range blocks {
		if b.Type != luminote.BlockTypeHeading {
			continue
		}
		level := headingLevel(b.Metadata["level"])
		node := &HeadingNode{Type: "heading", Level: level, Text: b.Text, ID: b.ID, Children: []*HeadingNode{}}

		for len(stack) > 1 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		stack = append(stack, node)
	}
	return root
}

// headingLevel accepts the int set at parse time and the float64 a cached
// document decodes to.
func headingLevel(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 1
}

// referenceLinks collects links between a "References"-like heading and the
// next heading, deduplicated by URL.
func referenceLinks(page *goquery.Document) []Link {
	var links []Link
	seen := make(map[string]bool)

	page.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		if !containsAny(strings.ToLower(text(h)), referenceHeading) {
			return
		}
		for cur := h.Next(); cur.Length() > 0 && !cur.Is(headingSelector); cur = cur.Next() {
			cur.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				href := a.AttrOr("href", "")
				label := text(a)
				if href == "" || label == "" || seen[href] {
					return
				}
				seen[href] = true
				links = append(links, Link{Text: label, URL: href})
			})
		}
	})
	return links
}

// isAPIDocumentation looks for api-doc classes or at least two endpoint
// headings such as "GET /users".
func isAPIDocumentation(page *goquery.Document) bool {
	found := false
	page.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, cls := range classes(s) {
			if apiDocClass.MatchString(cls) {
				found = true
				return false
			}
		}
		return true
	})
	if found {
		return true
	}

	endpoints := 0
	page.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		t := text(h)
		for _, m := range httpMethods {
			if strings.HasPrefix(t, m+" /") {
				endpoints++
				return
			}
		}
	})
	return endpoints >= 2
}

func author(page *goquery.Document, ld map[string]any) string {
	var name string
	page.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(m.AttrOr("name", "")), "author") {
			name = m.AttrOr("content", "")
			return false
		}
		return true
	})
	if name != "" {
		return name
	}

	switch a := ld["author"].(type) {
	case string:
		return a
	case map[string]any:
		return ldString(a, "name")
	}
	return ""
}

// byline prefers an explicit byline element, then the sentence around an
// author element when it reads "by ...".
func byline(page *goquery.Document) string {
	if el := firstWithClass(page, "byline"); el != nil {
		return text(el)
	}

	el := firstWithClass(page, "author")
	if el == nil {
		return ""
	}
	parent := el.Parent()
	if !parent.Is("p, div, span") {
		return ""
	}
	if t := text(parent); bylineWord.MatchString(t) {
		return t
	}
	return ""
}

func firstWithClass(page *goquery.Document, keyword string) *goquery.Selection {
	var found *goquery.Selection
	page.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.AttrOr("class", "")), keyword) {
			found = s
			return false
		}
		return true
	})
	return found
}

func datePublished(page *goquery.Document, ld map[string]any) string {
	dateMeta := page.Find(`meta[property="article:published_time"]`).First()
	if dateMeta.Length() == 0 {
		page.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(m.AttrOr("name", "")), "date") {
				dateMeta = m
				return false
			}
			return true
		})
	}
	if d := dateMeta.AttrOr("content", ""); d != "" {
		return d
	}
	return ldString(ld, "datePublished")
}

// pullQuotes merges styled blockquotes in the full page with quote blocks
// flagged as pull quotes, without duplicates.
func pullQuotes(page *goquery.Document, blocks []luminote.ContentBlock) []string {
	var quotes []string
	add := func(q string) {
		if q != "" && !slices.Contains(quotes, q) {
			quotes = append(quotes, q)
		}
	}

	page.Find("blockquote").Each(func(_ int, q *goquery.Selection) {
		if isPullQuote(q) {
			add(text(q))
		}
	})
	for _, b := range blocks {
		if b.Type == luminote.BlockTypeQuote && b.Metadata["is_pull_quote"] == true {
			add(b.Text)
		}
	}
	return quotes
}

// tags gathers keywords from meta tags and JSON-LD, deduplicated without
// regard to case.
func tags(page *goquery.Document, ld map[string]any) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			return
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, tag)
	}

	if kw := page.Find(`meta[name="keywords"]`).First(); kw.Length() > 0 {
		for _, tag := range strings.Split(kw.AttrOr("content", ""), ",") {
			add(tag)
		}
	}
	page.Find(`meta[name="article:tag"]`).Each(func(_ int, m *goquery.Selection) {
		add(m.AttrOr("content", ""))
	})

	switch kw := ld["keywords"].(type) {
	case []any:
		for _, k := range kw {
			if s, ok := k.(string); ok {
				add(s)
			}
		}
	case string:
		for _, k := range strings.Split(kw, ",") {
			add(k)
		}
	}
	return out
}
