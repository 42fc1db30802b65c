package launcher

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

// --- Firecrawl Mock ---

type mockFirecrawlClient struct {
	mock.Mock
}

func (m *mockFirecrawlClient) Map(ctx context.Context, req firecrawl.MapRequest) (*firecrawl.MapResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.MapResponse), args.Error(1)
}

func (m *mockFirecrawlClient) BatchScrape(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeResponse), args.Error(1)
}

func (m *mockFirecrawlClient) GetBatchScrapeStatus(ctx context.Context, id string) (*firecrawl.BatchScrapeStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeStatusResponse), args.Error(1)
}

func (m *mockFirecrawlClient) Extract(ctx context.Context, req firecrawl.ExtractRequest) (*firecrawl.ExtractResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ExtractResponse), args.Error(1)
}

func (m *mockFirecrawlClient) GetExtractStatus(ctx context.Context, id string) (*firecrawl.ExtractStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ExtractStatusResponse), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error {
	args := m.Called(ctx, id, status, progress, step)
	return args.Error(0)
}

func (m *mockStore) SetMappingCounts(ctx context.Context, id string, counts model.CategoryCounts) error {
	args := m.Called(ctx, id, counts)
	return args.Error(0)
}

func (m *mockStore) UpsertBrandURLs(ctx context.Context, urls []model.BrandURL) (int64, error) {
	args := m.Called(ctx, urls)
	return args.Get(0).(int64), args.Error(1)
}
