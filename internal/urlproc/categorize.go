// Package urlproc classifies discovered links and normalizes scraped text.
// Everything here is pure string/URL heuristics with no I/O.
package urlproc

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/brand-discovery/internal/model"
)

// Pattern-match weights. Scores accumulate across all matching patterns;
// the highest-scoring category wins.
const (
	subdomainWeight = 100
	pathWeight      = 50
	titleWeight     = 25
	homepageBonus   = 30
)

// DefaultTopPerCategory bounds how many URLs per category a selection keeps
// when the caller does not say otherwise.
const DefaultTopPerCategory = 8

// categoryPatterns holds the match tables for one scored category.
type categoryPatterns struct {
	category   model.URLCategory
	subdomains []string
	paths      []string
	titles     []string
}

// scoredCategories are evaluated in this order; ties keep the earlier
// category. "other" is the non-competing default and never scores.
var scoredCategories = []categoryPatterns{
	{
		category:   model.URLCategoryCompany,
		subdomains: []string{"about", "company", "corporate", "careers"},
		paths: []string{
			"about", "about-us", "company", "team", "our-team", "careers",
			"contact", "contact-us", "leadership", "mission", "our-story",
		},
		titles: []string{"about", "company", "team", "careers", "contact"},
	},
	{
		category:   model.URLCategoryBlog,
		subdomains: []string{"blog", "news", "press", "media"},
		paths: []string{
			"blog", "news", "articles", "posts", "press", "insights",
			"stories", "updates",
		},
		titles: []string{"blog", "news", "article", "post", "insights"},
	},
	{
		category:   model.URLCategoryDocs,
		subdomains: []string{"docs", "developer", "developers", "api", "help", "support"},
		paths: []string{
			"docs", "documentation", "api", "guides", "guide", "help",
			"support", "reference", "tutorials", "faq",
		},
		titles: []string{"documentation", "docs", "api", "guide", "developer", "help"},
	},
	{
		category:   model.URLCategoryEcommerce,
		subdomains: []string{"shop", "store", "checkout"},
		paths: []string{
			"shop", "store", "products", "product", "pricing", "plans",
			"buy", "cart", "checkout", "collections", "catalog",
		},
		titles: []string{"shop", "store", "pricing", "buy", "product", "plans"},
	},
}

// SelectionOrder is the fixed cross-category concatenation order used when
// sampling a working set for batch scraping.
var SelectionOrder = []model.URLCategory{
	model.URLCategoryCompany,
	model.URLCategoryEcommerce,
	model.URLCategoryDocs,
	model.URLCategoryBlog,
	model.URLCategoryOther,
}

// Categorized groups scored links by winning category.
type Categorized map[model.URLCategory][]model.CategorizedURL

// Categorize scores every link against the category pattern tables and
// assigns each to exactly one category. Malformed URLs land in "other" with
// priority 0. The assignment is deterministic for a given input.
func Categorize(links []model.Link) Categorized {
	out := make(Categorized, len(scoredCategories)+1)
	for _, link := range links {
		cat, score := scoreLink(link)
		out[cat] = append(out[cat], model.CategorizedURL{
			Link:     link,
			Category: cat,
			Priority: score,
		})
	}
	return out
}

func scoreLink(link model.Link) (model.URLCategory, int) {
	u, err := url.Parse(link.URL)
	if err != nil || u.Host == "" {
		return model.URLCategoryOther, 0
	}

	host := strings.ToLower(u.Hostname())
	segments := pathSegments(u.Path)
	title := strings.ToLower(link.Title)
	homepage := len(segments) == 0

	bestCat := model.URLCategoryOther
	bestScore := 0
	for _, cp := range scoredCategories {
		score := 0
		for _, sub := range cp.subdomains {
			if hasSubdomain(host, sub) {
				score += subdomainWeight
			}
		}
		for _, seg := range segments {
			for _, p := range cp.paths {
				if seg == p {
					score += pathWeight
				}
			}
		}
		for _, kw := range cp.titles {
			if kw != "" && strings.Contains(title, kw) {
				score += titleWeight
			}
		}
		if homepage && cp.category == model.URLCategoryCompany {
			score += homepageBonus
		}
		// Strictly greater keeps the earlier category on ties.
		if score > bestScore {
			bestScore = score
			bestCat = cp.category
		}
	}
	if bestScore == 0 {
		return model.URLCategoryOther, 0
	}
	return bestCat, bestScore
}

// hasSubdomain reports whether host carries the keyword as a label left of
// the registered domain (blog.example.com matches "blog"; example.com and
// myblog.example.com do not).
func hasSubdomain(host, keyword string) bool {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return false
	}
	for _, label := range labels[:len(labels)-2] {
		if label == keyword {
			return true
		}
	}
	return false
}

func pathSegments(path string) []string {
	trimmed := strings.Trim(strings.ToLower(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// SelectTop takes the highest-priority links per category, at most
// maxPerCategory each (default 8 when <= 0), concatenated in SelectionOrder.
// Sorting is stable so equal priorities preserve input order.
func SelectTop(c Categorized, maxPerCategory int) []model.CategorizedURL {
	if maxPerCategory <= 0 {
		maxPerCategory = DefaultTopPerCategory
	}
	var out []model.CategorizedURL
	for _, cat := range SelectionOrder {
		urls := append([]model.CategorizedURL(nil), c[cat]...)
		sort.SliceStable(urls, func(i, j int) bool {
			return urls[i].Priority > urls[j].Priority
		})
		if len(urls) > maxPerCategory {
			urls = urls[:maxPerCategory]
		}
		out = append(out, urls...)
	}
	return out
}
