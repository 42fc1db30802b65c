package model

import "time"

// MappingStatus tracks one discovery run for a (brand, domain) pair.
type MappingStatus string

const (
	MappingStatusProcessing      MappingStatus = "processing"
	MappingStatusMappingURLs     MappingStatus = "mapping_urls"
	MappingStatusScrapingContent MappingStatus = "scraping_content"
	MappingStatusCompleted       MappingStatus = "completed"
	MappingStatusFailed          MappingStatus = "failed"
)

// CategoryCounts tallies discovered URLs per category for UI display.
type CategoryCounts struct {
	Company   int `json:"company"`
	Blog      int `json:"blog"`
	Docs      int `json:"docs"`
	Ecommerce int `json:"ecommerce"`
	Other     int `json:"other"`
}

// Total sums all category buckets.
func (c CategoryCounts) Total() int {
	return c.Company + c.Blog + c.Docs + c.Ecommerce + c.Other
}

// Mapping is the per-run progress row the UI polls. One row per
// (brand_id, domain); upserted, never deleted by this service.
type Mapping struct {
	ID           string         `json:"id"`
	BrandID      string         `json:"brand_id"`
	Domain       string         `json:"domain"`
	Status       MappingStatus  `json:"status"`
	Progress     int            `json:"progress_percentage"`
	CurrentStep  string         `json:"current_step"`
	Counts       CategoryCounts `json:"counts"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}
