// Package uploader renders scraped pages to frontmatter markdown and writes
// them to R2 in paced, bounded batches.
package uploader

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/pkg/r2"
)

const (
	defaultConcurrency = 5
	defaultBatchDelay  = 100 * time.Millisecond
)

// Config tunes upload batching.
type Config struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	BatchDelay  time.Duration `yaml:"batch_delay" mapstructure:"batch_delay"`
}

// PageInput is one page queued for upload. Index disambiguates pages whose
// title and path both slugify to nothing.
type PageInput struct {
	model.ScrapedPage
	Index int
}

// ItemResult reports the outcome for a single page.
type ItemResult struct {
	URL     string `json:"url"`
	R2Key   string `json:"r2Key"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Size    int    `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result aggregates a batch upload.
type Result struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	TotalSize  int          `json:"totalSize"`
	Items      []ItemResult `json:"items"`
}

// Uploader writes frontmatter markdown objects to an R2 bucket.
type Uploader struct {
	bucket      r2.Client
	concurrency int
	limiter     *rate.Limiter
}

// New builds an Uploader. Zero config fields fall back to five pages per
// batch and a 100ms gap between batches.
func New(bucket r2.Client, cfg Config) *Uploader {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	delay := cfg.BatchDelay
	if delay <= 0 {
		delay = defaultBatchDelay
	}
	return &Uploader{
		bucket:      bucket,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
	}
}

type frontmatter struct {
	Title       string   `yaml:"title"`
	URL         string   `yaml:"url"`
	Timestamp   string   `yaml:"timestamp"`
	ContentType string   `yaml:"content_type"`
	Index       int      `yaml:"index"`
	Images      []string `yaml:"images,omitempty"`
}

// Render produces the markdown document stored in R2: a YAML frontmatter
// block followed by the page body.
func Render(page PageInput, now time.Time) ([]byte, error) {
	fm := frontmatter{
		Title:       page.Title,
		URL:         page.URL,
		Timestamp:   now.UTC().Format(time.RFC3339),
		ContentType: ContentType(page.URL),
		Index:       page.Index,
		Images:      page.Images,
	}
	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return nil, eris.Wrap(err, "uploader: marshal frontmatter")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fmYAML)
	b.WriteString("---\n\n")
	b.WriteString(page.Markdown)
	return []byte(b.String()), nil
}

// UploadPage writes one page, skipping when the key already exists unless
// overwrite is set. A skip counts as success.
func (u *Uploader) UploadPage(ctx context.Context, domain string, page PageInput, overwrite bool) ItemResult {
	key := Key(domain, page)
	item := ItemResult{URL: page.URL, R2Key: key}

	if !overwrite {
		exists, err := u.bucket.Exists(ctx, key)
		if err != nil {
			item.Error = err.Error()
			return item
		}
		if exists {
			item.Success = true
			item.Skipped = true
			return item
		}
	}

	body, err := Render(page, time.Now())
	if err != nil {
		item.Error = err.Error()
		return item
	}

	if err := u.bucket.Put(ctx, key, "text/markdown", body); err != nil {
		item.Error = err.Error()
		return item
	}
	item.Success = true
	item.Size = len(body)
	return item
}

// UploadPages uploads all pages for a domain in batches. Every page gets an
// ItemResult; one page failing never aborts the rest.
func (u *Uploader) UploadPages(ctx context.Context, domain string, pages []model.ScrapedPage, overwrite bool) (*Result, error) {
	result := &Result{
		Total: len(pages),
		Items: make([]ItemResult, len(pages)),
	}

	for start := 0; start < len(pages); start += u.concurrency {
		if start > 0 {
			if err := u.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "uploader: wait between batches")
			}
		}

		end := start + u.concurrency
		if end > len(pages) {
			end = len(pages)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			idx := i
			g.Go(func() error {
				result.Items[idx] = u.UploadPage(gctx, domain, PageInput{ScrapedPage: pages[idx], Index: idx}, overwrite)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "uploader: batch wait")
		}
	}

	for _, item := range result.Items {
		if item.Success {
			result.Successful++
			result.TotalSize += item.Size
		} else {
			result.Failed++
		}
	}

	zap.L().Info("uploaded brand content",
		zap.String("domain", domain),
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("totalSize", result.TotalSize),
	)

	if result.Successful == 0 && result.Total > 0 {
		return result, eris.Errorf("uploader: all %d uploads failed", result.Total)
	}
	return result, nil
}
