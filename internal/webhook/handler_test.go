package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/uploader"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"batch_scrape.page"}`)

	assert.True(t, VerifySignature(testSecret, body, Sign(testSecret, body)))
	assert.False(t, VerifySignature(testSecret, body, Sign("other", body)))
	assert.False(t, VerifySignature(testSecret, body, "deadbeef"))
	assert.False(t, VerifySignature(testSecret, []byte("tampered"), Sign(testSecret, body)))
	assert.False(t, VerifySignature("", body, Sign("", body)))
}

func newTestHandler(st Store, applier Applier) *Handler {
	up := uploader.New(newFakeBucket(), uploader.Config{})
	return NewHandler(st, up, applier, testSecret)
}

func postEvent(t *testing.T, h *Handler, ev Event, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/firecrawl", bytes.NewReader(body))
	if sign {
		req.Header.Set(SignatureHeader, Sign(testSecret, body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()

	t.Run("rejects unsigned requests", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(new(mockStore), new(mockApplier))
		rec := postEvent(t, h, Event{Type: "batch_scrape.started"}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(new(mockStore), new(mockApplier))
		body := []byte(`{not json`)
		req := httptest.NewRequest(http.MethodPost, "/webhook/firecrawl", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, Sign(testSecret, body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("acknowledges unknown event types", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(new(mockStore), new(mockApplier))
		rec := postEvent(t, h, Event{Type: "batch_scrape.document_ready"}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("acknowledges events without metadata", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(new(mockStore), new(mockApplier))
		rec := postEvent(t, h, Event{Type: "batch_scrape.started"}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("acknowledges events whose handling fails", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		st.On("UpdateMappingProgress", mock.Anything, "mapping-1", model.MappingStatusScrapingContent, 50, "Scraping page content").
			Return(errors.New("store down"))

		h := newTestHandler(st, new(mockApplier))
		rec := postEvent(t, h, Event{Type: "batch_scrape.started", Metadata: scrapeMeta()}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		st.AssertExpectations(t)
	})
}

func scrapeMeta() map[string]string {
	return map[string]string{
		"brandId":   "brand-1",
		"mappingId": "mapping-1",
		"domain":    "acme.com",
		"jobType":   "brandContent",
	}
}

func TestStartedEvent(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	st.On("UpdateMappingProgress", mock.Anything, "mapping-1", model.MappingStatusScrapingContent, 50, "Scraping page content").Return(nil)

	h := newTestHandler(st, new(mockApplier))
	rec := postEvent(t, h, Event{Type: "batch_scrape.started", Metadata: scrapeMeta()}, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	st.AssertExpectations(t)
}

func pageEvent(t *testing.T, pages []firecrawl.PageData) Event {
	t.Helper()
	data, err := json.Marshal(pages)
	require.NoError(t, err)
	return Event{Type: "batch_scrape.page", Data: data, Metadata: scrapeMeta()}
}

func TestPageEvent(t *testing.T) {
	t.Parallel()

	goodMarkdown := strings.Repeat("Acme builds industrial widgets for manufacturers. ", 3)

	t.Run("uploads a valid page", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		st.On("MarkURLScraped", mock.Anything, "brand-1", "https://acme.com/about", mock.Anything).Return(true, nil)
		st.On("MarkURLUploading", mock.Anything, "brand-1", "https://acme.com/about").Return(true, nil)
		st.On("MarkURLUploaded", mock.Anything, "brand-1", "https://acme.com/about",
			"brands/acme.com/content/about/about-acme.md", mock.Anything).Return(true, nil)
		st.On("CountURLStatuses", mock.Anything, "brand-1").
			Return(map[model.URLStatus]int{model.URLStatusUploaded: 1, model.URLStatusDiscovered: 3}, nil)
		st.On("UpdateMappingProgress", mock.Anything, "mapping-1", model.MappingStatusScrapingContent, 60, "Uploaded 1 of 4 pages").Return(nil)

		h := newTestHandler(st, new(mockApplier))
		rec := postEvent(t, h, pageEvent(t, []firecrawl.PageData{{
			Markdown: goodMarkdown,
			Metadata: firecrawl.PageMetadata{Title: "About Acme", SourceURL: "https://acme.com/about"},
		}}), true)
		assert.Equal(t, http.StatusOK, rec.Code)
		st.AssertExpectations(t)
	})

	t.Run("marks invalid content failed without uploading", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		st.On("MarkURLScraped", mock.Anything, "brand-1", "https://acme.com/404", mock.Anything).Return(true, nil)
		st.On("MarkURLFailed", mock.Anything, "brand-1", "https://acme.com/404", "content failed validation").Return(true, nil)
		st.On("CountURLStatuses", mock.Anything, "brand-1").
			Return(map[model.URLStatus]int{model.URLStatusFailed: 1}, nil)
		st.On("UpdateMappingProgress", mock.Anything, "mapping-1", model.MappingStatusScrapingContent, 90, mock.Anything).Return(nil)

		h := newTestHandler(st, new(mockApplier))
		rec := postEvent(t, h, pageEvent(t, []firecrawl.PageData{{
			Markdown: "short",
			Metadata: firecrawl.PageMetadata{Title: "Missing", SourceURL: "https://acme.com/404"},
		}}), true)
		assert.Equal(t, http.StatusOK, rec.Code)
		st.AssertExpectations(t)
		st.AssertNotCalled(t, "MarkURLUploading", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("skips pages another delivery already claimed", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		st.On("MarkURLScraped", mock.Anything, "brand-1", "https://acme.com/about", mock.Anything).Return(false, nil)
		st.On("MarkURLUploading", mock.Anything, "brand-1", "https://acme.com/about").Return(false, nil)
		st.On("CountURLStatuses", mock.Anything, "brand-1").
			Return(map[model.URLStatus]int{model.URLStatusUploaded: 1}, nil)
		st.On("UpdateMappingProgress", mock.Anything, "mapping-1", model.MappingStatusScrapingContent, 90, mock.Anything).Return(nil)

		h := newTestHandler(st, new(mockApplier))
		rec := postEvent(t, h, pageEvent(t, []firecrawl.PageData{{
			Markdown: goodMarkdown,
			Metadata: firecrawl.PageMetadata{Title: "About Acme", SourceURL: "https://acme.com/about"},
		}}), true)
		assert.Equal(t, http.StatusOK, rec.Code)
		st.AssertNotCalled(t, "MarkURLUploaded", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCompletedEvent(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	st.On("CountURLStatuses", mock.Anything, "brand-1").
		Return(map[model.URLStatus]int{model.URLStatusUploaded: 5, model.URLStatusFailed: 1}, nil)
	st.On("CompleteMapping", mock.Anything, "mapping-1", "Completed: 5 pages uploaded, 1 failed").Return(nil)
	st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusProcessing, model.CrawlStatusCompleted).Return(true, nil)

	h := newTestHandler(st, new(mockApplier))
	rec := postEvent(t, h, Event{Type: "crawl.completed", Metadata: scrapeMeta()}, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	st.AssertExpectations(t)
}

func TestFailedEvent(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	st.On("FailMapping", mock.Anything, "mapping-1", "provider error").Return(nil)
	st.On("FailPendingURLs", mock.Anything, "brand-1", "provider error").Return(int64(4), nil)
	st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusProcessing, model.CrawlStatusFailed).Return(true, nil)

	h := newTestHandler(st, new(mockApplier))
	rec := postEvent(t, h, Event{Type: "batch_scrape.failed", Error: "provider error", Metadata: scrapeMeta()}, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	st.AssertExpectations(t)
}

func TestExtractEvents(t *testing.T) {
	t.Parallel()

	meta := map[string]string{"brandId": "brand-1", "jobType": "brandExtraction"}

	t.Run("applies completed extraction", func(t *testing.T) {
		t.Parallel()
		applier := new(mockApplier)
		applier.On("ApplyExtraction", mock.Anything, "brand-1", mock.MatchedBy(func(f model.ExtractedFields) bool {
			return f.CompanyName == "Acme Inc" && f.Industry == "manufacturing"
		})).Return(nil)

		data, _ := json.Marshal(model.ExtractedFields{CompanyName: "Acme Inc", Industry: "manufacturing"})
		h := newTestHandler(new(mockStore), applier)
		rec := postEvent(t, h, Event{Type: "extract.completed", Data: data, Metadata: meta}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		applier.AssertExpectations(t)
	})

	t.Run("ignores extractions for other job types", func(t *testing.T) {
		t.Parallel()
		applier := new(mockApplier)
		h := newTestHandler(new(mockStore), applier)
		rec := postEvent(t, h, Event{
			Type:     "extract.completed",
			Metadata: map[string]string{"brandId": "brand-1", "jobType": "other"},
		}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		applier.AssertNotCalled(t, "ApplyExtraction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("routes failed extraction", func(t *testing.T) {
		t.Parallel()
		applier := new(mockApplier)
		applier.On("FailExtraction", mock.Anything, "brand-1", "no content").Return(nil)

		h := newTestHandler(new(mockStore), applier)
		rec := postEvent(t, h, Event{Type: "extract.failed", Error: "no content", Metadata: meta}, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		applier.AssertExpectations(t)
	})
}
