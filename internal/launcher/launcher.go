// Package launcher starts the asynchronous Firecrawl jobs behind brand
// discovery: the structured extract for brand fields and the map plus
// batch-scrape pipeline for site content.
package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/urlproc"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

// Store is the slice of the persistence layer a launch touches.
type Store interface {
	UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error
	SetMappingCounts(ctx context.Context, id string, counts model.CategoryCounts) error
	UpsertBrandURLs(ctx context.Context, urls []model.BrandURL) (int64, error)
}

// JobTypeBrandContent tags webhook metadata for batch-scrape jobs so the
// handler can tell them apart from other event sources.
const JobTypeBrandContent = "brandContent"

// JobTypeBrandExtraction tags extract jobs launched for brand fields.
const JobTypeBrandExtraction = "brandExtraction"

const defaultMapLimit = 30

// Config tunes job launches.
type Config struct {
	MapLimit       int           `yaml:"map_limit" mapstructure:"map_limit"`
	TopPerCategory int           `yaml:"top_per_category" mapstructure:"top_per_category"`
	ScrapeTimeout  time.Duration `yaml:"scrape_timeout" mapstructure:"scrape_timeout"`
	CacheMaxAge    time.Duration `yaml:"cache_max_age" mapstructure:"cache_max_age"`
	Concurrency    int           `yaml:"concurrency" mapstructure:"concurrency"`
	WebhookURL     string        `yaml:"webhook_url" mapstructure:"webhook_url"`
}

func (c Config) withDefaults() Config {
	if c.MapLimit <= 0 {
		c.MapLimit = defaultMapLimit
	}
	if c.TopPerCategory <= 0 {
		c.TopPerCategory = urlproc.DefaultTopPerCategory
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = 30 * time.Second
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	return c
}

// Launcher starts extract and scrape jobs and records their identifiers.
type Launcher struct {
	fc  firecrawl.Client
	st  Store
	cfg Config
}

func New(fc firecrawl.Client, st Store, cfg Config) *Launcher {
	return &Launcher{fc: fc, st: st, cfg: cfg.withDefaults()}
}

// extractSchema describes the structured brand fields Firecrawl derives from
// a homepage. Field names line up with model.ExtractedFields.
var extractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"company_name":  map[string]any{"type": "string", "description": "Official company or brand name"},
		"description":   map[string]any{"type": "string", "description": "One to two sentence summary of what the company does"},
		"industry":      map[string]any{"type": "string", "description": "Primary industry or market"},
		"logo_url":      map[string]any{"type": "string", "description": "Absolute URL of the company logo"},
		"contact_email": map[string]any{"type": "string", "description": "Primary contact email address"},
		"phone_number":  map[string]any{"type": "string", "description": "Primary contact phone number"},
		"address":       map[string]any{"type": "string", "description": "Headquarters or primary business address"},
		"pricing_info":  map[string]any{"type": "string", "description": "Pricing model or ranges if published"},
		"main_product":  map[string]any{"type": "string", "description": "Flagship product or service"},
	},
	"required": []string{"company_name", "description"},
}

const extractPrompt = "Extract the company's brand information from this website. " +
	"Prefer facts stated on the page over inference; leave fields empty when the page does not state them."

// StartBrandExtraction launches a Firecrawl extract job against the domain's
// homepage and returns the job identifier.
func (l *Launcher) StartBrandExtraction(ctx context.Context, domain string) (string, error) {
	resp, err := l.fc.Extract(ctx, firecrawl.ExtractRequest{
		URLs:   []string{fmt.Sprintf("https://%s", domain)},
		Prompt: extractPrompt,
		Schema: extractSchema,
	})
	if err != nil {
		return "", eris.Wrapf(err, "launcher: start extraction for %s", domain)
	}
	if resp.ID == "" {
		return "", eris.Errorf("launcher: extraction for %s returned no job id", domain)
	}

	zap.L().Info("started brand extraction",
		zap.String("domain", domain),
		zap.String("jobId", resp.ID),
	)
	return resp.ID, nil
}

// PipelineLaunch reports what a content pipeline launch produced.
type PipelineLaunch struct {
	JobID    string               `json:"jobId"`
	Selected int                  `json:"selected"`
	Counts   model.CategoryCounts `json:"counts"`
}

// StartBrandPipeline maps the domain, stores and categorizes the discovered
// links, and launches a webhook-driven batch scrape for the selected URLs.
func (l *Launcher) StartBrandPipeline(ctx context.Context, brand *model.Brand, mapping *model.Mapping) (*PipelineLaunch, error) {
	domain := mapping.Domain

	mapResp, err := l.fc.Map(ctx, firecrawl.MapRequest{
		URL:               fmt.Sprintf("https://%s", domain),
		Limit:             l.cfg.MapLimit,
		IncludeSubdomains: true,
		Sitemap:           "include",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "launcher: map %s", domain)
	}
	if len(mapResp.Links) == 0 {
		return nil, eris.Errorf("launcher: map %s returned no links", domain)
	}

	if err := l.st.UpdateMappingProgress(ctx, mapping.ID, model.MappingStatusMappingURLs, 40, "Categorizing discovered URLs"); err != nil {
		return nil, err
	}

	links := make([]model.Link, 0, len(mapResp.Links))
	for _, ml := range mapResp.Links {
		links = append(links, model.Link{URL: ml.URL, Title: ml.Title, Description: ml.Description})
	}

	categorized := urlproc.Categorize(links)
	selected := urlproc.SelectTop(categorized, l.cfg.TopPerCategory)

	var counts model.CategoryCounts
	urls := make([]model.BrandURL, 0, len(selected))
	scrapeURLs := make([]string, 0, len(selected))
	for _, cu := range selected {
		switch cu.Category {
		case model.URLCategoryCompany:
			counts.Company++
		case model.URLCategoryBlog:
			counts.Blog++
		case model.URLCategoryDocs:
			counts.Docs++
		case model.URLCategoryEcommerce:
			counts.Ecommerce++
		default:
			counts.Other++
		}
		urls = append(urls, model.BrandURL{
			BrandID:     brand.ID,
			MappingID:   mapping.ID,
			URL:         cu.URL,
			Title:       cu.Title,
			Description: cu.Description,
			Category:    cu.Category,
			Priority:    cu.Priority,
			Status:      model.URLStatusDiscovered,
		})
		scrapeURLs = append(scrapeURLs, cu.URL)
	}

	if _, err := l.st.UpsertBrandURLs(ctx, urls); err != nil {
		return nil, err
	}
	if err := l.st.SetMappingCounts(ctx, mapping.ID, counts); err != nil {
		return nil, err
	}

	scrapeResp, err := l.fc.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs: scrapeURLs,
		Options: firecrawl.ScrapeOptions{
			Formats:            []string{"markdown"},
			OnlyMainContent:    true,
			Timeout:            int(l.cfg.ScrapeTimeout.Milliseconds()),
			MaxAge:             int(l.cfg.CacheMaxAge.Milliseconds()),
			BlockAds:           true,
			RemoveBase64Images: true,
		},
		Concurrency:       l.cfg.Concurrency,
		IgnoreInvalidURLs: true,
		Webhook: &firecrawl.Webhook{
			URL:    l.cfg.WebhookURL,
			Events: []string{"started", "page", "completed", "failed"},
			Metadata: map[string]string{
				"brandId":   brand.ID,
				"domain":    domain,
				"mappingId": mapping.ID,
				"jobType":   JobTypeBrandContent,
			},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "launcher: batch scrape %s", domain)
	}
	if scrapeResp.ID == "" {
		return nil, eris.Errorf("launcher: batch scrape %s returned no job id", domain)
	}

	zap.L().Info("started content pipeline",
		zap.String("domain", domain),
		zap.String("jobId", scrapeResp.ID),
		zap.Int("discovered", len(mapResp.Links)),
		zap.Int("selected", len(selected)),
	)
	return &PipelineLaunch{JobID: scrapeResp.ID, Selected: len(selected), Counts: counts}, nil
}
