// Package store persists brands, progress mappings, and discovered URLs.
// Two backends exist: Postgres (production) and SQLite (local development),
// selected by the store.driver config key.
package store

import (
	"context"

	"github.com/sells-group/brand-discovery/internal/model"
)

// Store defines the persistence interface for the discovery pipeline. All
// cross-invocation coordination goes through it; the service holds no state
// of its own between requests.
type Store interface {
	// Brands
	CreateBrand(ctx context.Context, b *model.Brand) error
	GetBrand(ctx context.Context, id string) (*model.Brand, error)
	// FindPublicBrand returns the public, ownerless brand row for a domain,
	// or nil when none exists.
	FindPublicBrand(ctx context.Context, domain string) (*model.Brand, error)
	UpdateBrandFields(ctx context.Context, b *model.Brand) error
	// AdvanceBrandStatus moves crawl_status forward conditionally on the
	// expected prior status; it reports false when the row was not in that
	// status, which keeps duplicate deliveries idempotent.
	AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error)
	ListBrandsByStatus(ctx context.Context, status model.CrawlStatus, limit int) ([]model.Brand, error)

	// Progress mappings
	UpsertMapping(ctx context.Context, m *model.Mapping) (*model.Mapping, error)
	GetMapping(ctx context.Context, brandID, domain string) (*model.Mapping, error)
	// UpdateMappingProgress writes status/step and raises the progress
	// percentage; progress never decreases within a run.
	UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error
	SetMappingCounts(ctx context.Context, id string, counts model.CategoryCounts) error
	CompleteMapping(ctx context.Context, id, step string) error
	FailMapping(ctx context.Context, id, errMsg string) error

	// Brand URLs
	UpsertBrandURLs(ctx context.Context, urls []model.BrandURL) (int64, error)
	GetBrandURL(ctx context.Context, brandID, url string) (*model.BrandURL, error)
	// The Mark* methods apply one validated URL status transition each and
	// report false when the row was absent or the move would be backward.
	MarkURLScraped(ctx context.Context, brandID, url string, contentSize int) (bool, error)
	MarkURLUploading(ctx context.Context, brandID, url string) (bool, error)
	MarkURLUploaded(ctx context.Context, brandID, url, r2Key string, size int) (bool, error)
	MarkURLFailed(ctx context.Context, brandID, url, errMsg string) (bool, error)
	// FailPendingURLs bulk-moves rows still in {discovered, scraping} to
	// failed when the provider reports the whole run failed.
	FailPendingURLs(ctx context.Context, brandID, errMsg string) (int64, error)
	CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// allowedInto lists the statuses a row may hold immediately before moving to
// next, including next itself so re-deliveries are no-ops at the SQL level.
func allowedInto(next model.URLStatus) []string {
	var out []string
	for _, s := range model.AllURLStatuses {
		if s.CanTransition(next) {
			out = append(out, string(s))
		}
	}
	return out
}
