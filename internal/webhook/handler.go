package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/uploader"
	"github.com/sells-group/brand-discovery/internal/urlproc"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

// Store is the slice of the persistence layer event handling touches.
type Store interface {
	AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error)
	UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error
	CompleteMapping(ctx context.Context, id, step string) error
	FailMapping(ctx context.Context, id, errMsg string) error
	MarkURLScraped(ctx context.Context, brandID, url string, contentSize int) (bool, error)
	MarkURLUploading(ctx context.Context, brandID, url string) (bool, error)
	MarkURLUploaded(ctx context.Context, brandID, url, r2Key string, size int) (bool, error)
	MarkURLFailed(ctx context.Context, brandID, url, errMsg string) (bool, error)
	FailPendingURLs(ctx context.Context, brandID, errMsg string) (int64, error)
	CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error)
}

// Applier finishes a brand extraction job by merging its fields into the
// brand row.
type Applier interface {
	ApplyExtraction(ctx context.Context, brandID string, fields model.ExtractedFields) error
	FailExtraction(ctx context.Context, brandID, reason string) error
}

// Event is the Firecrawl webhook envelope. Data is a page array for scrape
// events and a document for extract events.
type Event struct {
	Success  bool              `json:"success"`
	Type     string            `json:"type"`
	ID       string            `json:"id"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Handler routes verified webhook events.
type Handler struct {
	st      Store
	up      *uploader.Uploader
	applier Applier
	secret  string
}

func NewHandler(st Store, up *uploader.Uploader, applier Applier, secret string) *Handler {
	return &Handler{st: st, up: up, applier: applier, secret: secret}
}

// ServeHTTP verifies the signature and dispatches the event. Unknown event
// types acknowledge with 200 so the provider does not retry them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Always acknowledge a verified event: the provider retries non-2xx
	// responses, and a partial failure is picked up by the reconciler later.
	if err := h.HandleEvent(r.Context(), ev); err != nil {
		zap.L().Error("webhook event failed",
			zap.String("type", ev.Type),
			zap.String("jobId", ev.ID),
			zap.Error(err),
		)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

// HandleEvent routes one event by type. Batch-scrape and crawl events share
// semantics, so the source prefix is ignored.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) error {
	kind := ev.Type
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}

	if strings.HasPrefix(ev.Type, "extract.") {
		return h.handleExtract(ctx, kind, ev)
	}

	brandID := ev.Metadata["brandId"]
	mappingID := ev.Metadata["mappingId"]
	domain := ev.Metadata["domain"]
	if brandID == "" || mappingID == "" {
		zap.L().Warn("webhook event missing correlation metadata", zap.String("type", ev.Type))
		return nil
	}

	switch kind {
	case "started":
		return h.st.UpdateMappingProgress(ctx, mappingID, model.MappingStatusScrapingContent, 50, "Scraping page content")
	case "page":
		return h.handlePages(ctx, brandID, mappingID, domain, ev.Data)
	case "completed":
		return h.handleCompleted(ctx, brandID, mappingID)
	case "failed":
		return h.handleFailed(ctx, brandID, mappingID, ev.Error)
	default:
		zap.L().Debug("ignoring webhook event", zap.String("type", ev.Type))
		return nil
	}
}

func (h *Handler) handleExtract(ctx context.Context, kind string, ev Event) error {
	if ev.Metadata["jobType"] != "brandExtraction" {
		return nil
	}
	brandID := ev.Metadata["brandId"]
	if brandID == "" {
		return nil
	}

	switch kind {
	case "completed":
		fields, err := model.DecodeExtractedFields(ev.Data)
		if err != nil {
			return eris.Wrap(err, "webhook: decode extract data")
		}
		return h.applier.ApplyExtraction(ctx, brandID, fields)
	case "failed":
		return h.applier.FailExtraction(ctx, brandID, ev.Error)
	default:
		return nil
	}
}

// handlePages uploads each scraped page and records the outcome per URL.
// A single bad page never fails the event; the provider should not retry a
// whole batch because one page was empty.
func (h *Handler) handlePages(ctx context.Context, brandID, mappingID, domain string, data json.RawMessage) error {
	var pages []firecrawl.PageData
	if err := json.Unmarshal(data, &pages); err != nil {
		return eris.Wrap(err, "webhook: decode page data")
	}

	for i, pd := range pages {
		pageURL := pd.Metadata.SourceURL
		if pageURL == "" {
			pageURL = pd.URL
		}
		if pageURL == "" {
			continue
		}

		if _, err := h.st.MarkURLScraped(ctx, brandID, pageURL, len(pd.Markdown)); err != nil {
			return err
		}

		page := model.ScrapedPage{
			URL:      pageURL,
			Title:    pd.Metadata.Title,
			Markdown: pd.Markdown,
			Images:   pd.Metadata.Images,
		}
		if !urlproc.IsValidContent(page) {
			if _, err := h.st.MarkURLFailed(ctx, brandID, pageURL, "content failed validation"); err != nil {
				return err
			}
			continue
		}
		page.Markdown = urlproc.CleanContent(page.Markdown)

		ok, err := h.st.MarkURLUploading(ctx, brandID, pageURL)
		if err != nil {
			return err
		}
		if !ok {
			// already uploaded by an earlier delivery of this event
			continue
		}

		item := h.up.UploadPage(ctx, domain, uploader.PageInput{ScrapedPage: page, Index: i}, false)
		if item.Success {
			if _, err := h.st.MarkURLUploaded(ctx, brandID, pageURL, item.R2Key, item.Size); err != nil {
				return err
			}
		} else {
			if _, err := h.st.MarkURLFailed(ctx, brandID, pageURL, item.Error); err != nil {
				return err
			}
		}
	}

	return h.advanceProgress(ctx, brandID, mappingID)
}

// advanceProgress recomputes mapping progress from row counts. The scrape
// phase occupies the 50 to 90 band; completion claims the rest.
func (h *Handler) advanceProgress(ctx context.Context, brandID, mappingID string) error {
	counts, err := h.st.CountURLStatuses(ctx, brandID)
	if err != nil {
		return err
	}
	total := 0
	done := 0
	for status, n := range counts {
		total += n
		if status == model.URLStatusUploaded || status == model.URLStatusFailed {
			done += n
		}
	}
	if total == 0 {
		return nil
	}
	progress := 50 + 40*done/total
	return h.st.UpdateMappingProgress(ctx, mappingID, model.MappingStatusScrapingContent, progress,
		fmt.Sprintf("Uploaded %d of %d pages", done, total))
}

func (h *Handler) handleCompleted(ctx context.Context, brandID, mappingID string) error {
	counts, err := h.st.CountURLStatuses(ctx, brandID)
	if err != nil {
		return err
	}
	uploaded := counts[model.URLStatusUploaded]
	failed := counts[model.URLStatusFailed]

	step := fmt.Sprintf("Completed: %d pages uploaded, %d failed", uploaded, failed)
	if err := h.st.CompleteMapping(ctx, mappingID, step); err != nil {
		return err
	}
	if _, err := h.st.AdvanceBrandStatus(ctx, brandID, model.CrawlStatusProcessing, model.CrawlStatusCompleted); err != nil {
		return err
	}

	zap.L().Info("content pipeline completed",
		zap.String("brandId", brandID),
		zap.Int("uploaded", uploaded),
		zap.Int("failed", failed),
	)
	return nil
}

func (h *Handler) handleFailed(ctx context.Context, brandID, mappingID, reason string) error {
	if reason == "" {
		reason = "batch scrape failed"
	}
	if err := h.st.FailMapping(ctx, mappingID, reason); err != nil {
		return err
	}
	if _, err := h.st.FailPendingURLs(ctx, brandID, reason); err != nil {
		return err
	}
	if _, err := h.st.AdvanceBrandStatus(ctx, brandID, model.CrawlStatusProcessing, model.CrawlStatusFailed); err != nil {
		return err
	}
	return nil
}
