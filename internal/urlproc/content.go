package urlproc

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/brand-discovery/internal/model"
)

// minContentLength is the shortest markdown body worth storing; anything
// smaller is a redirect stub or an error page.
const minContentLength = 50

// errorPathMarkers flag URL paths that resolve to error pages.
var errorPathMarkers = []string{"404", "500", "error"}

// errorTitleMarkers flag page titles that indicate a failed fetch.
var errorTitleMarkers = []string{"error", "not found"}

// IsValidContent reports whether a scraped page is worth uploading. Pages
// whose resolved path looks like an error page, whose body is under 50
// characters, or whose title reads like an error are rejected.
func IsValidContent(page model.ScrapedPage) bool {
	if u, err := url.Parse(page.URL); err == nil {
		path := strings.ToLower(u.Path)
		for _, marker := range errorPathMarkers {
			if strings.Contains(path, marker) {
				return false
			}
		}
	}

	if len(strings.TrimSpace(page.Markdown)) < minContentLength {
		return false
	}

	title := strings.ToLower(page.Title)
	for _, marker := range errorTitleMarkers {
		if strings.Contains(title, marker) {
			return false
		}
	}
	return true
}

// navLabels are standalone navigation lines stripped from scraped markdown.
var navLabels = map[string]bool{
	"home":            true,
	"menu":            true,
	"navigation":      true,
	"skip to content": true,
	"skip to main content": true,
	"login":           true,
	"log in":          true,
	"sign in":         true,
	"sign up":         true,
	"search":          true,
	"subscribe":       true,
	"back to top":     true,
	"cookie settings": true,
	"accept all cookies": true,
}

var (
	tripleNewlineRe = regexp.MustCompile(`\n{3,}`)
	copyrightLineRe = regexp.MustCompile(`(?i)^\s*(?:©|\(c\)|copyright)\s*.*\b(?:19|20)\d{2}\b.*$`)
	markdownLinkRe  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headerMarkerRe  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
)

// CleanContent strips scrape boilerplate from markdown: nav-label lines,
// copyright footer lines, markdown link syntax (keeping the link text),
// header markers, and excess blank lines. Best effort, not lossless.
func CleanContent(text string) string {
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	text = headerMarkerRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if navLabels[trimmed] {
			continue
		}
		if copyrightLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = tripleNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
