package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/brand-discovery/internal/launcher"
	"github.com/sells-group/brand-discovery/internal/model"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateBrand(ctx context.Context, b *model.Brand) error {
	args := m.Called(ctx, b)
	if b.ID == "" {
		b.ID = "brand-new"
	}
	return args.Error(0)
}

func (m *mockStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Brand), args.Error(1)
}

func (m *mockStore) FindPublicBrand(ctx context.Context, domain string) (*model.Brand, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Brand), args.Error(1)
}

func (m *mockStore) UpdateBrandFields(ctx context.Context, b *model.Brand) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *mockStore) AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpsertMapping(ctx context.Context, mp *model.Mapping) (*model.Mapping, error) {
	args := m.Called(ctx, mp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *mockStore) GetMapping(ctx context.Context, brandID, domain string) (*model.Mapping, error) {
	args := m.Called(ctx, brandID, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *mockStore) FailMapping(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *mockStore) CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error) {
	args := m.Called(ctx, brandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.URLStatus]int), args.Error(1)
}

// --- Launcher Mock ---

type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) StartBrandExtraction(ctx context.Context, domain string) (string, error) {
	args := m.Called(ctx, domain)
	return args.String(0), args.Error(1)
}

func (m *mockLauncher) StartBrandPipeline(ctx context.Context, brand *model.Brand, mapping *model.Mapping) (*launcher.PipelineLaunch, error) {
	args := m.Called(ctx, brand, mapping)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*launcher.PipelineLaunch), args.Error(1)
}
