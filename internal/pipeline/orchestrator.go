// Package pipeline orchestrates brand discovery: it turns a domain into a
// brand row, launches the extraction and content jobs, and merges their
// results as they complete.
package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/launcher"
	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/uploader"
	"github.com/sells-group/brand-discovery/internal/urlproc"
)

var (
	// ErrInvalidDomain rejects input that does not normalize to a domain.
	ErrInvalidDomain = eris.New("pipeline: invalid domain")
	// ErrDiscoveryInFlight rejects a duplicate request while a discovery for
	// the same domain is still running in this process.
	ErrDiscoveryInFlight = eris.New("pipeline: discovery already in flight for domain")
)

// Store is the slice of the persistence layer orchestration touches.
type Store interface {
	CreateBrand(ctx context.Context, b *model.Brand) error
	GetBrand(ctx context.Context, id string) (*model.Brand, error)
	FindPublicBrand(ctx context.Context, domain string) (*model.Brand, error)
	UpdateBrandFields(ctx context.Context, b *model.Brand) error
	AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error)
	UpsertMapping(ctx context.Context, m *model.Mapping) (*model.Mapping, error)
	GetMapping(ctx context.Context, brandID, domain string) (*model.Mapping, error)
	FailMapping(ctx context.Context, id, errMsg string) error
	CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error)
}

// Launcher starts the provider jobs a discovery depends on.
type Launcher interface {
	StartBrandExtraction(ctx context.Context, domain string) (string, error)
	StartBrandPipeline(ctx context.Context, brand *model.Brand, mapping *model.Mapping) (*launcher.PipelineLaunch, error)
}

// Orchestrator wires the store and the job launcher together.
type Orchestrator struct {
	st       Store
	launcher Launcher
	inflight *inflight
}

func NewOrchestrator(st Store, l Launcher) *Orchestrator {
	return &Orchestrator{st: st, launcher: l, inflight: newInflight()}
}

// DiscoverResult reports what a discovery request started. Scraping is nil
// when the content pipeline failed to launch; the extraction job still runs.
type DiscoverResult struct {
	Success      bool                     `json:"success"`
	Brand        *model.Brand             `json:"brand,omitempty"`
	Mapping      *model.Mapping           `json:"mapping,omitempty"`
	ExtractJobID string                   `json:"extractJobId,omitempty"`
	Scraping     *launcher.PipelineLaunch `json:"scrapingResult,omitempty"`
	Existing     bool                     `json:"existing"`
}

// Discover runs the synchronous half of brand discovery: normalize the
// domain, launch the extraction job, ensure the brand and mapping rows, and
// kick off the content pipeline. A content launch failure is recorded on the
// mapping but does not fail the request; the extraction is already running.
func (o *Orchestrator) Discover(ctx context.Context, rawDomain string) (*DiscoverResult, error) {
	domain := urlproc.NormalizeDomain(rawDomain)
	if domain == "" || !strings.Contains(domain, ".") {
		return nil, eris.Wrapf(ErrInvalidDomain, "input %q", rawDomain)
	}

	if !o.inflight.acquire(domain) {
		return nil, eris.Wrapf(ErrDiscoveryInFlight, "domain %s", domain)
	}
	defer o.inflight.release(domain)

	extractJobID, err := o.launcher.StartBrandExtraction(ctx, domain)
	if err != nil {
		return nil, err
	}

	brand, err := o.st.FindPublicBrand(ctx, domain)
	if err != nil {
		return nil, err
	}

	existing := brand != nil
	if existing {
		if brand.Metadata == nil {
			brand.Metadata = map[string]any{}
		}
		brand.Metadata[model.MetadataExtractJobKey] = extractJobID
		if err := o.st.UpdateBrandFields(ctx, brand); err != nil {
			return nil, err
		}
		if brand.CrawlStatus.Terminal() {
			if _, err := o.st.AdvanceBrandStatus(ctx, brand.ID, brand.CrawlStatus, model.CrawlStatusExtracting); err != nil {
				return nil, err
			}
		}
	} else {
		brand = &model.Brand{
			PrimaryDomain: domain,
			Name:          nameFromDomain(domain),
			Slug:          uploader.Slugify(domain),
			Metadata:      map[string]any{model.MetadataExtractJobKey: extractJobID},
			CrawlStatus:   model.CrawlStatusExtracting,
			IsPublic:      true,
		}
		if err := o.st.CreateBrand(ctx, brand); err != nil {
			return nil, err
		}
	}

	mapping, err := o.st.UpsertMapping(ctx, &model.Mapping{
		BrandID:     brand.ID,
		Domain:      domain,
		Status:      model.MappingStatusProcessing,
		Progress:    30,
		CurrentStep: "Starting URL discovery",
	})
	if err != nil {
		return nil, err
	}

	result := &DiscoverResult{
		Success:      true,
		Brand:        brand,
		Mapping:      mapping,
		ExtractJobID: extractJobID,
		Existing:     existing,
	}

	launch, err := o.launcher.StartBrandPipeline(ctx, brand, mapping)
	if err != nil {
		zap.L().Error("content pipeline launch failed",
			zap.String("domain", domain),
			zap.String("brandId", brand.ID),
			zap.Error(err),
		)
		if failErr := o.st.FailMapping(ctx, mapping.ID, err.Error()); failErr != nil {
			zap.L().Error("failed to record mapping failure", zap.Error(failErr))
		}
		return result, nil
	}
	result.Scraping = launch

	zap.L().Info("brand discovery started",
		zap.String("domain", domain),
		zap.String("brandId", brand.ID),
		zap.String("extractJobId", extractJobID),
		zap.String("scrapeJobId", launch.JobID),
		zap.Bool("existing", existing),
	)
	return result, nil
}

// StatusResult is the progress snapshot for one domain.
type StatusResult struct {
	Brand     *model.Brand            `json:"brand"`
	Mapping   *model.Mapping          `json:"mapping,omitempty"`
	URLCounts map[model.URLStatus]int `json:"urlCounts,omitempty"`
}

// Status reports where discovery for a domain currently stands.
func (o *Orchestrator) Status(ctx context.Context, rawDomain string) (*StatusResult, error) {
	domain := urlproc.NormalizeDomain(rawDomain)
	if domain == "" {
		return nil, eris.Wrapf(ErrInvalidDomain, "input %q", rawDomain)
	}

	brand, err := o.st.FindPublicBrand(ctx, domain)
	if err != nil {
		return nil, err
	}
	if brand == nil {
		return nil, nil
	}

	mapping, err := o.st.GetMapping(ctx, brand.ID, domain)
	if err != nil {
		return nil, err
	}
	counts, err := o.st.CountURLStatuses(ctx, brand.ID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{Brand: brand, Mapping: mapping, URLCounts: counts}, nil
}
