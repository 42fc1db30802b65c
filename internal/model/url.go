package model

import "time"

// URLStatus tracks a discovered URL through scrape and upload.
type URLStatus string

const (
	URLStatusDiscovered URLStatus = "discovered"
	URLStatusScraping   URLStatus = "scraping"
	URLStatusScraped    URLStatus = "scraped"
	URLStatusUploading  URLStatus = "uploading"
	URLStatusUploaded   URLStatus = "uploaded"
	URLStatusFailed     URLStatus = "failed"
)

// AllURLStatuses enumerates every URL status, used to derive the set of
// prior statuses a transition may legally come from.
var AllURLStatuses = []URLStatus{
	URLStatusDiscovered,
	URLStatusScraping,
	URLStatusScraped,
	URLStatusUploading,
	URLStatusUploaded,
	URLStatusFailed,
}

// urlTransitions closes the per-URL state machine. A page event may arrive
// before the scraping marker was ever written, so discovered may move
// straight to scraped; it may never skip ahead to uploaded.
var urlTransitions = map[URLStatus][]URLStatus{
	URLStatusDiscovered: {URLStatusScraping, URLStatusScraped, URLStatusFailed},
	URLStatusScraping:   {URLStatusScraped, URLStatusFailed},
	URLStatusScraped:    {URLStatusUploading, URLStatusFailed},
	URLStatusUploading:  {URLStatusUploaded, URLStatusFailed},
}

// CanTransition reports whether moving from s to next is legal. Re-applying
// the current status is a no-op, keeping duplicate deliveries idempotent.
func (s URLStatus) CanTransition(next URLStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range urlTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// URLCategory is the coarse content bucket a discovered link lands in.
type URLCategory string

const (
	URLCategoryCompany   URLCategory = "company"
	URLCategoryBlog      URLCategory = "blog"
	URLCategoryDocs      URLCategory = "docs"
	URLCategoryEcommerce URLCategory = "ecommerce"
	URLCategoryOther     URLCategory = "other"
)

// BrandURL is one discovered link for a brand, unique per (brand_id, url).
type BrandURL struct {
	ID           string      `json:"id"`
	BrandID      string      `json:"brand_id"`
	MappingID    string      `json:"mapping_id"`
	URL          string      `json:"url"`
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	Category     URLCategory `json:"category"`
	Priority     int         `json:"priority"`
	Status       URLStatus   `json:"status"`
	R2Key        string      `json:"r2_key,omitempty"`
	ContentSize  int         `json:"content_size,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Link is a candidate URL returned by the provider's map operation.
type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// CategorizedURL is a link after scoring, carrying its winning category.
type CategorizedURL struct {
	Link
	Category URLCategory `json:"category"`
	Priority int         `json:"priority"`
}

// ScrapedPage is one page of provider output ready for upload.
type ScrapedPage struct {
	URL      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Markdown string   `json:"markdown"`
	Images   []string `json:"images,omitempty"`
}
