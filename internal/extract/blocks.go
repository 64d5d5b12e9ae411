package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/haowjy/luminote-go"
)

const (
	headingSelector = "h1, h2, h3, h4, h5, h6"
	blockSelector   = "p, h1, h2, h3, h4, h5, h6, ul, ol, blockquote, pre, img, figure"

	// Elements whose text already includes everything nested inside them.
	containerSelector = "p, h1, h2, h3, h4, h5, h6, ul, ol, blockquote, pre, figure"
)

var (
	tabContentClass = regexp.MustCompile(`(?i)(?:tab|tabbed)[-_]content`)
	numberedLine    = regexp.MustCompile(`^(\s*)(\d+)[.:]\s(.*)$`)

	navClassKeywords = []string{
		"nav", "navigation", "sidebar", "side-bar", "related", "trending",
		"menu", "comment", "comments", "disqus", "discourse", "replies",
	}
	navIDKeywords = []string{
		"nav", "sidebar", "menu", "related", "trending",
		"comment", "comments", "disqus", "discourse",
	}
	pullQuoteKeywords = []string{"pull", "pullquote", "highlight"}
)

// parseBlocks splits readability output into content blocks in document
// order. Code inside tabbed containers comes first, since those containers
// are removed before the main pass.
func parseBlocks(doc *goquery.Selection) []luminote.ContentBlock {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc
	}

	var blocks []luminote.ContentBlock

	done := make(map[*html.Node]bool)
	root.Find("div").FilterFunction(isTabContainer).Each(func(_ int, c *goquery.Selection) {
		c.Find("pre").Each(func(_ int, pre *goquery.Selection) {
			node := pre.Get(0)
			if done[node] || pre.Find("code").Length() == 0 {
				return
			}
			done[node] = true
			if b, ok := elementToBlock(pre); ok {
				blocks = append(blocks, b)
			}
		})
	})
	root.Find("div").FilterFunction(isTabContainer).Remove()

	root.Find(blockSelector).Each(func(_ int, el *goquery.Selection) {
		if goquery.NodeName(el) == "img" {
			if el.ParentsFiltered("figure").Length() > 0 {
				return
			}
		} else if el.ParentsFiltered(containerSelector).Length() > 0 {
			return
		}
		if isNavigationOrSidebar(el) || insideTabbedContent(el) {
			return
		}
		if b, ok := elementToBlock(el); ok {
			blocks = append(blocks, b)
		}
	})
	return blocks
}

func isTabContainer(_ int, s *goquery.Selection) bool {
	if _, ok := s.Attr("data-tabs"); ok {
		return true
	}
	for _, cls := range classes(s) {
		if tabContentClass.MatchString(cls) {
			return true
		}
	}
	return false
}

// insideTabbedContent reports whether s sits in a tab widget that survived
// container removal.
func insideTabbedContent(s *goquery.Selection) bool {
	for cur := s; cur.Length() > 0 && !cur.Is("body, html"); cur = cur.Parent() {
		class := strings.ToLower(cur.AttrOr("class", ""))
		if strings.Contains(class, "tabbed") || strings.Contains(class, "tab-content") {
			return true
		}
		if v, ok := cur.Attr("data-tabs"); ok && v != "" {
			return true
		}
	}
	return false
}

// isNavigationOrSidebar reports whether s or an ancestor is navigation,
// a sidebar or a comment thread. Asides styled as pull quotes are kept.
func isNavigationOrSidebar(s *goquery.Selection) bool {
	for cur := s; cur.Length() > 0 && !cur.Is("body, html"); cur = cur.Parent() {
		name := goquery.NodeName(cur)
		if name == "nav" {
			return true
		}
		class := strings.ToLower(cur.AttrOr("class", ""))
		if name == "aside" && !containsAny(class, pullQuoteKeywords) {
			return true
		}
		if containsAny(class, navClassKeywords) {
			return true
		}
		if containsAny(strings.ToLower(cur.AttrOr("id", "")), navIDKeywords) {
			return true
		}
	}
	return false
}

func isPullQuote(s *goquery.Selection) bool {
	if containsAny(strings.ToLower(s.AttrOr("class", "")), pullQuoteKeywords) {
		return true
	}
	parent := s.Parent()
	return goquery.NodeName(parent) == "aside" &&
		containsAny(strings.ToLower(parent.AttrOr("class", "")), pullQuoteKeywords)
}

func elementToBlock(el *goquery.Selection) (luminote.ContentBlock, bool) {
	block := luminote.ContentBlock{ID: uuid.NewString(), Metadata: map[string]any{}}

	switch name := goquery.NodeName(el); name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		block.Type = luminote.BlockTypeHeading
		block.Text = text(el)
		block.Metadata["level"] = int(name[1] - '0')

	case "p":
		block.Type = luminote.BlockTypeParagraph
		block.Text = text(el)

	case "ul", "ol":
		var items []string
		el.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if t := text(li); t != "" {
				items = append(items, t)
			}
		})
		if len(items) == 0 {
			return block, false
		}
		lines := make([]string, len(items))
		listType := "unordered"
		for i, item := range items {
			if name == "ol" {
				listType = "ordered"
				lines[i] = fmt.Sprintf("%d. %s", i+1, item)
			} else {
				lines[i] = "• " + item
			}
		}
		block.Type = luminote.BlockTypeList
		block.Text = strings.Join(lines, "\n")
		block.Metadata["list_type"] = listType
		block.Metadata["items"] = items

	case "blockquote":
		block.Type = luminote.BlockTypeQuote
		block.Text = text(el)
		block.Metadata["is_pull_quote"] = isPullQuote(el)

	case "pre":
		raw := el.Text()
		if strings.TrimSpace(raw) == "" {
			return block, false
		}
		block.Type = luminote.BlockTypeCode
		block.Text = removeLineNumbers(raw)
		if lang := codeLanguage(el.Find("code").First()); lang != "" {
			block.Metadata["language"] = lang
		}
		return block, true

	case "img":
		src := el.AttrOr("src", "")
		if src == "" {
			return block, false
		}
		alt := el.AttrOr("alt", "")
		block.Type = luminote.BlockTypeImage
		block.Text = alt
		block.Metadata = imageMetadata(el, src, alt)
		return block, true

	case "figure":
		img := el.Find("img").First()
		src := img.AttrOr("src", "")
		if src == "" {
			return block, false
		}
		alt := img.AttrOr("alt", "")
		caption := text(el.Find("figcaption").First())
		block.Type = luminote.BlockTypeImage
		block.Text = caption
		if caption == "" {
			block.Text = alt
		}
		block.Metadata = imageMetadata(img, src, alt)
		block.Metadata["caption"] = caption
		return block, true

	default:
		return block, false
	}

	return block, block.Text != ""
}

func imageMetadata(img *goquery.Selection, src, alt string) map[string]any {
	return map[string]any{
		"src":    src,
		"alt":    alt,
		"width":  optionalAttr(img, "width"),
		"height": optionalAttr(img, "height"),
	}
}

// optionalAttr returns the attribute value, or nil so it encodes as null.
func optionalAttr(s *goquery.Selection, name string) any {
	if v, ok := s.Attr(name); ok {
		return v
	}
	return nil
}

func codeLanguage(code *goquery.Selection) string {
	for _, cls := range classes(code) {
		for _, prefix := range []string{"language-", "lang-"} {
			if lang, ok := strings.CutPrefix(cls, prefix); ok && lang != "" {
				return lang
			}
		}
	}
	return ""
}

// removeLineNumbers strips "12. " or "12: " prefixes, but only when at least
// half the lines carry one and the numbers run consecutively. Anything less
// is left alone so float literals and numbered comments survive.
func removeLineNumbers(code string) string {
	lines := strings.Split(code, "\n")

	type numbered struct {
		indent, rest string
		n            int
	}
	found := make(map[int]numbered)
	var order []int
	for i, line := range lines {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		found[i] = numbered{indent: m[1], rest: m[3], n: n}
		order = append(order, i)
	}

	if len(order) < 2 || 2*len(order) < len(lines) {
		return code
	}
	for k := 1; k < len(order); k++ {
		if found[order[k]].n != found[order[k-1]].n+1 {
			return code
		}
	}

	for i, m := range found {
		lines[i] = m.indent + m.rest
	}
	return strings.Join(lines, "\n")
}

// text returns the element's text with runs of whitespace collapsed.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func classes(s *goquery.Selection) []string {
	return strings.Fields(s.AttrOr("class", ""))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
