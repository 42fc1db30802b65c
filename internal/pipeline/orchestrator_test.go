package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brand-discovery/internal/launcher"
	"github.com/sells-group/brand-discovery/internal/model"
)

func TestDiscoverNewBrand(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	l := new(mockLauncher)

	l.On("StartBrandExtraction", mock.Anything, "acme.com").Return("extract-1", nil)
	st.On("FindPublicBrand", mock.Anything, "acme.com").Return(nil, nil)
	st.On("CreateBrand", mock.Anything, mock.MatchedBy(func(b *model.Brand) bool {
		return b.PrimaryDomain == "acme.com" && b.Name == "Acme" && b.Slug == "acme-com" &&
			b.CrawlStatus == model.CrawlStatusExtracting && b.IsPublic &&
			b.Metadata[model.MetadataExtractJobKey] == "extract-1"
	})).Return(nil)
	st.On("UpsertMapping", mock.Anything, mock.MatchedBy(func(m *model.Mapping) bool {
		return m.Domain == "acme.com" && m.Status == model.MappingStatusProcessing && m.Progress == 30
	})).Return(&model.Mapping{ID: "mapping-1", BrandID: "brand-new", Domain: "acme.com"}, nil)
	l.On("StartBrandPipeline", mock.Anything, mock.Anything, mock.Anything).
		Return(&launcher.PipelineLaunch{JobID: "batch-1", Selected: 12}, nil)

	o := NewOrchestrator(st, l)
	res, err := o.Discover(context.Background(), "https://www.acme.com/about?x=1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Brand)
	assert.Equal(t, "acme.com", res.Brand.PrimaryDomain)
	assert.Equal(t, "extract-1", res.ExtractJobID)
	require.NotNil(t, res.Scraping)
	assert.Equal(t, "batch-1", res.Scraping.JobID)
	assert.Equal(t, 12, res.Scraping.Selected)
	require.NotNil(t, res.Mapping)
	assert.Equal(t, "mapping-1", res.Mapping.ID)
	assert.False(t, res.Existing)
	st.AssertExpectations(t)
	l.AssertExpectations(t)
}

func TestDiscoverExistingBrandRestartsCrawl(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	l := new(mockLauncher)

	existing := &model.Brand{
		ID:            "brand-1",
		PrimaryDomain: "acme.com",
		Name:          "Acme Inc",
		CrawlStatus:   model.CrawlStatusCompleted,
		IsPublic:      true,
	}

	l.On("StartBrandExtraction", mock.Anything, "acme.com").Return("extract-2", nil)
	st.On("FindPublicBrand", mock.Anything, "acme.com").Return(existing, nil)
	st.On("UpdateBrandFields", mock.Anything, mock.MatchedBy(func(b *model.Brand) bool {
		return b.ID == "brand-1" && b.Metadata[model.MetadataExtractJobKey] == "extract-2"
	})).Return(nil)
	st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusCompleted, model.CrawlStatusExtracting).Return(true, nil)
	st.On("UpsertMapping", mock.Anything, mock.Anything).
		Return(&model.Mapping{ID: "mapping-1", BrandID: "brand-1", Domain: "acme.com"}, nil)
	l.On("StartBrandPipeline", mock.Anything, mock.Anything, mock.Anything).
		Return(&launcher.PipelineLaunch{JobID: "batch-2"}, nil)

	o := NewOrchestrator(st, l)
	res, err := o.Discover(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.True(t, res.Existing)
	require.NotNil(t, res.Brand)
	assert.Equal(t, "brand-1", res.Brand.ID)
	st.AssertExpectations(t)
}

func TestDiscoverRejectsInvalidDomain(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator(new(mockStore), new(mockLauncher))

	for _, input := range []string{"", "   ", "localhost", "not a domain"} {
		_, err := o.Discover(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidDomain, "input %q", input)
	}
}

func TestDiscoverExtractionFailureFailsRequest(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	l := new(mockLauncher)
	l.On("StartBrandExtraction", mock.Anything, "acme.com").Return("", errors.New("provider down"))

	o := NewOrchestrator(st, l)
	_, err := o.Discover(context.Background(), "acme.com")
	require.Error(t, err)
	st.AssertNotCalled(t, "CreateBrand", mock.Anything, mock.Anything)
}

func TestDiscoverPipelineFailureStillSucceeds(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	l := new(mockLauncher)

	l.On("StartBrandExtraction", mock.Anything, "acme.com").Return("extract-1", nil)
	st.On("FindPublicBrand", mock.Anything, "acme.com").Return(nil, nil)
	st.On("CreateBrand", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertMapping", mock.Anything, mock.Anything).
		Return(&model.Mapping{ID: "mapping-1", BrandID: "brand-new", Domain: "acme.com"}, nil)
	l.On("StartBrandPipeline", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("map returned no links"))
	st.On("FailMapping", mock.Anything, "mapping-1", "map returned no links").Return(nil)

	o := NewOrchestrator(st, l)
	res, err := o.Discover(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "extract-1", res.ExtractJobID)
	assert.Nil(t, res.Scraping)
	st.AssertExpectations(t)
}

func TestDiscoverInFlightGuard(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	l := new(mockLauncher)

	release := make(chan struct{})
	started := make(chan struct{})
	l.On("StartBrandExtraction", mock.Anything, "acme.com").Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return("", errors.New("canceled")).Once()

	o := NewOrchestrator(st, l)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = o.Discover(context.Background(), "acme.com")
	}()

	<-started
	_, err := o.Discover(context.Background(), "acme.com")
	assert.ErrorIs(t, err, ErrDiscoveryInFlight)

	close(release)
	wg.Wait()

	// released after the first attempt finishes
	l.On("StartBrandExtraction", mock.Anything, "acme.com").Return("", errors.New("still down"))
	_, err = o.Discover(context.Background(), "acme.com")
	assert.NotErrorIs(t, err, ErrDiscoveryInFlight)
}

func TestApplyExtraction(t *testing.T) {
	t.Parallel()

	t.Run("merges fields and advances the brand", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		brand := &model.Brand{ID: "brand-1", PrimaryDomain: "acme.com", CrawlStatus: model.CrawlStatusExtracting}

		st.On("GetBrand", mock.Anything, "brand-1").Return(brand, nil)
		st.On("UpdateBrandFields", mock.Anything, mock.MatchedBy(func(b *model.Brand) bool {
			return b.Name == "Acme Incorporated" && b.Description == "Widgets" &&
				b.Slug == "acme-incorporated" && b.Metadata["industry"] == "manufacturing"
		})).Return(nil)
		st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusExtracting, model.CrawlStatusProcessing).Return(true, nil)
		st.On("GetMapping", mock.Anything, "brand-1", "acme.com").Return(nil, nil)

		o := NewOrchestrator(st, new(mockLauncher))
		err := o.ApplyExtraction(context.Background(), "brand-1", model.ExtractedFields{
			CompanyName: "Acme Incorporated",
			Description: "Widgets",
			Industry:    "manufacturing",
		})
		require.NoError(t, err)
		st.AssertExpectations(t)
	})

	t.Run("falls back to a title-cased domain name", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		brand := &model.Brand{ID: "brand-1", PrimaryDomain: "acme-tools.com", CrawlStatus: model.CrawlStatusExtracting}

		st.On("GetBrand", mock.Anything, "brand-1").Return(brand, nil)
		st.On("UpdateBrandFields", mock.Anything, mock.MatchedBy(func(b *model.Brand) bool {
			return b.Name == "Acme Tools"
		})).Return(nil)
		st.On("AdvanceBrandStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		st.On("GetMapping", mock.Anything, "brand-1", "acme-tools.com").Return(nil, nil)

		o := NewOrchestrator(st, new(mockLauncher))
		err := o.ApplyExtraction(context.Background(), "brand-1", model.ExtractedFields{})
		require.NoError(t, err)
		st.AssertExpectations(t)
	})

	t.Run("completes the brand when the scrape already finished", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		brand := &model.Brand{ID: "brand-1", PrimaryDomain: "acme.com", CrawlStatus: model.CrawlStatusExtracting}
		mapping := &model.Mapping{ID: "map-1", BrandID: "brand-1", Domain: "acme.com", Status: model.MappingStatusCompleted}

		st.On("GetBrand", mock.Anything, "brand-1").Return(brand, nil)
		st.On("UpdateBrandFields", mock.Anything, mock.Anything).Return(nil)
		st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusExtracting, model.CrawlStatusProcessing).Return(true, nil)
		st.On("GetMapping", mock.Anything, "brand-1", "acme.com").Return(mapping, nil)
		st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusProcessing, model.CrawlStatusCompleted).Return(true, nil)

		o := NewOrchestrator(st, new(mockLauncher))
		err := o.ApplyExtraction(context.Background(), "brand-1", model.ExtractedFields{CompanyName: "Acme"})
		require.NoError(t, err)
		st.AssertExpectations(t)
	})
}

func TestFailExtraction(t *testing.T) {
	t.Parallel()
	st := new(mockStore)
	brand := &model.Brand{ID: "brand-1", PrimaryDomain: "acme.com", CrawlStatus: model.CrawlStatusExtracting}

	st.On("GetBrand", mock.Anything, "brand-1").Return(brand, nil)
	st.On("UpdateBrandFields", mock.Anything, mock.MatchedBy(func(b *model.Brand) bool {
		return b.Metadata["extractError"] == "no content"
	})).Return(nil)
	st.On("AdvanceBrandStatus", mock.Anything, "brand-1", model.CrawlStatusExtracting, model.CrawlStatusFailed).Return(true, nil)

	o := NewOrchestrator(st, new(mockLauncher))
	require.NoError(t, o.FailExtraction(context.Background(), "brand-1", "no content"))
	st.AssertExpectations(t)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	t.Run("unknown domain returns nil", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		st.On("FindPublicBrand", mock.Anything, "unknown.com").Return(nil, nil)

		o := NewOrchestrator(st, new(mockLauncher))
		res, err := o.Status(context.Background(), "unknown.com")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("reports brand, mapping, and counts", func(t *testing.T) {
		t.Parallel()
		st := new(mockStore)
		brand := &model.Brand{ID: "brand-1", PrimaryDomain: "acme.com"}
		mapping := &model.Mapping{ID: "mapping-1", Progress: 70}

		st.On("FindPublicBrand", mock.Anything, "acme.com").Return(brand, nil)
		st.On("GetMapping", mock.Anything, "brand-1", "acme.com").Return(mapping, nil)
		st.On("CountURLStatuses", mock.Anything, "brand-1").
			Return(map[model.URLStatus]int{model.URLStatusUploaded: 4}, nil)

		o := NewOrchestrator(st, new(mockLauncher))
		res, err := o.Status(context.Background(), "https://acme.com")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, 70, res.Mapping.Progress)
		assert.Equal(t, 4, res.URLCounts[model.URLStatusUploaded])
	})
}
