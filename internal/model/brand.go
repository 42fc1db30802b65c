package model

import (
	"encoding/json"
	"time"
)

// CrawlStatus tracks a brand through the discovery lifecycle.
type CrawlStatus string

const (
	CrawlStatusExtracting CrawlStatus = "extracting"
	CrawlStatusProcessing CrawlStatus = "processing"
	CrawlStatusCompleted  CrawlStatus = "completed"
	CrawlStatusFailed     CrawlStatus = "failed"
)

// crawlTransitions is the closed set of allowed moves. Terminal statuses
// accept only the restart edge back to extracting, taken when a domain is
// re-discovered; a backward write mid-run is never valid.
var crawlTransitions = map[CrawlStatus][]CrawlStatus{
	CrawlStatusExtracting: {CrawlStatusProcessing, CrawlStatusFailed},
	CrawlStatusProcessing: {CrawlStatusCompleted, CrawlStatusFailed},
	CrawlStatusCompleted:  {CrawlStatusExtracting},
	CrawlStatusFailed:     {CrawlStatusExtracting},
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Re-applying the current status is allowed so duplicate webhook
// deliveries stay idempotent.
func (s CrawlStatus) CanTransition(next CrawlStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range crawlTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s CrawlStatus) Terminal() bool {
	return s == CrawlStatusCompleted || s == CrawlStatusFailed
}

// MetadataExtractJobKey is the brand metadata key holding the async
// extraction job id issued by the provider.
const MetadataExtractJobKey = "extractJobId"

// Brand is a company identified by its primary domain. One public,
// ownerless row exists per domain.
type Brand struct {
	ID            string         `json:"id"`
	PrimaryDomain string         `json:"primary_domain"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	LogoURL       string         `json:"logo_url"`
	Slug          string         `json:"slug"`
	Metadata      map[string]any `json:"metadata"`
	CrawlStatus   CrawlStatus    `json:"crawl_status"`
	IsPublic      bool           `json:"is_public"`
	OwnerID       *string        `json:"owner_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ExtractJobID returns the stored extraction job id, if any.
func (b *Brand) ExtractJobID() string {
	if b.Metadata == nil {
		return ""
	}
	id, _ := b.Metadata[MetadataExtractJobKey].(string)
	return id
}

// ExtractedFields is the structured payload the extraction job derives from
// a brand homepage. CompanyName and Description are required by the schema;
// everything else is best-effort.
// DecodeExtractedFields parses an extract payload, accepting both a bare
// document and the single-element array some provider responses use.
func DecodeExtractedFields(raw json.RawMessage) (ExtractedFields, error) {
	var fields ExtractedFields
	if len(raw) == 0 {
		return fields, nil
	}
	var docs []ExtractedFields
	if err := json.Unmarshal(raw, &docs); err == nil {
		if len(docs) > 0 {
			fields = docs[0]
		}
		return fields, nil
	}
	err := json.Unmarshal(raw, &fields)
	return fields, err
}

type ExtractedFields struct {
	CompanyName  string `json:"company_name"`
	Description  string `json:"description"`
	Industry     string `json:"industry,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Address      string `json:"address,omitempty"`
	PricingInfo  string `json:"pricing_info,omitempty"`
	MainProduct  string `json:"main_product,omitempty"`
}
