package uploader

import (
	"fmt"
	"net/url"
	"strings"
)

const maxSlugLen = 80

// contentTypeKeywords maps path markers to the content_type folder a page
// lands in. Checked in order; first hit wins.
var contentTypeKeywords = []struct {
	markers []string
	folder  string
}{
	{[]string{"product", "shop", "store", "item"}, "products"},
	{[]string{"blog", "news", "article", "press"}, "news"},
	{[]string{"about", "team", "company", "mission"}, "about"},
	{[]string{"service", "solution", "pricing"}, "services"},
	{[]string{"contact", "support", "help"}, "contact"},
	{[]string{"media", "gallery", "video"}, "media"},
}

// ContentType buckets a page URL into a content folder based on its path.
// Pages that match nothing go under "pages".
func ContentType(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "pages"
	}
	path := strings.ToLower(u.Path)
	for _, ct := range contentTypeKeywords {
		for _, m := range ct.markers {
			if strings.Contains(path, m) {
				return ct.folder
			}
		}
	}
	return "pages"
}

// Slugify lowercases s and reduces it to hyphen-separated alphanumerics.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}

// Key builds the stable object key for one page. Stability matters: the same
// page always lands on the same key, so a head check can skip re-uploads.
// Layout: brands/{domain}/content/{content_type}/{slug}.md
func Key(domain string, page PageInput) string {
	slug := Slugify(page.Title)
	if slug == "" {
		slug = Slugify(lastPathSegment(page.URL))
	}
	if slug == "" {
		slug = fmt.Sprintf("page-%d", page.Index)
	}
	return fmt.Sprintf("brands/%s/content/%s/%s.md", domain, ContentType(page.URL), slug)
}

func lastPathSegment(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
