package webhook

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/brand-discovery/internal/model"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error {
	args := m.Called(ctx, id, status, progress, step)
	return args.Error(0)
}

func (m *mockStore) CompleteMapping(ctx context.Context, id, step string) error {
	args := m.Called(ctx, id, step)
	return args.Error(0)
}

func (m *mockStore) FailMapping(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *mockStore) MarkURLScraped(ctx context.Context, brandID, url string, contentSize int) (bool, error) {
	args := m.Called(ctx, brandID, url, contentSize)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkURLUploading(ctx context.Context, brandID, url string) (bool, error) {
	args := m.Called(ctx, brandID, url)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkURLUploaded(ctx context.Context, brandID, url, r2Key string, size int) (bool, error) {
	args := m.Called(ctx, brandID, url, r2Key, size)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkURLFailed(ctx context.Context, brandID, url, errMsg string) (bool, error) {
	args := m.Called(ctx, brandID, url, errMsg)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) FailPendingURLs(ctx context.Context, brandID, errMsg string) (int64, error) {
	args := m.Called(ctx, brandID, errMsg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error) {
	args := m.Called(ctx, brandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.URLStatus]int), args.Error(1)
}

// --- Applier Mock ---

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) ApplyExtraction(ctx context.Context, brandID string, fields model.ExtractedFields) error {
	args := m.Called(ctx, brandID, fields)
	return args.Error(0)
}

func (m *mockApplier) FailExtraction(ctx context.Context, brandID, reason string) error {
	args := m.Called(ctx, brandID, reason)
	return args.Error(0)
}

// --- R2 fake ---

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (f *fakeBucket) Put(_ context.Context, key, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return nil
}

func (f *fakeBucket) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBucket) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeBucket) Delete(_ context.Context, keys []string) (int, error) {
	return len(keys), nil
}
