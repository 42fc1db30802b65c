// Package reconciler sweeps brands stuck in extraction. Webhooks carry the
// happy path; the reconciler polls the provider for jobs whose callbacks
// never arrived.
package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/pkg/firecrawl"
)

// DefaultBatchSize bounds how many extracting brands one tick inspects.
const DefaultBatchSize = 10

// Store is the slice of the persistence layer a sweep reads.
type Store interface {
	ListBrandsByStatus(ctx context.Context, status model.CrawlStatus, limit int) ([]model.Brand, error)
}

// Applier finishes or fails an extraction against the brand row.
type Applier interface {
	ApplyExtraction(ctx context.Context, brandID string, fields model.ExtractedFields) error
	FailExtraction(ctx context.Context, brandID, reason string) error
}

// Reconciler polls pending extract jobs and applies their outcomes.
type Reconciler struct {
	st        Store
	fc        firecrawl.Client
	applier   Applier
	batchSize int
}

func New(st Store, fc firecrawl.Client, applier Applier, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reconciler{st: st, fc: fc, applier: applier, batchSize: batchSize}
}

// Tick inspects the oldest extracting brands and resolves any whose jobs
// have finished. Failures on one brand never block the rest; the next tick
// retries whatever is still pending.
func (r *Reconciler) Tick(ctx context.Context) error {
	brands, err := r.st.ListBrandsByStatus(ctx, model.CrawlStatusExtracting, r.batchSize)
	if err != nil {
		return err
	}
	if len(brands) == 0 {
		return nil
	}

	zap.L().Debug("reconciling extracting brands", zap.Int("count", len(brands)))

	for i := range brands {
		brand := &brands[i]
		if err := r.reconcileBrand(ctx, brand); err != nil {
			zap.L().Error("reconcile brand failed",
				zap.String("brandId", brand.ID),
				zap.String("domain", brand.PrimaryDomain),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (r *Reconciler) reconcileBrand(ctx context.Context, brand *model.Brand) error {
	jobID := brand.ExtractJobID()
	if jobID == "" {
		zap.L().Warn("extracting brand has no job id", zap.String("brandId", brand.ID))
		return nil
	}

	status, err := r.fc.GetExtractStatus(ctx, jobID)
	if err != nil {
		return err
	}

	switch status.Status {
	case firecrawl.ExtractStatusCompleted:
		fields, err := model.DecodeExtractedFields(status.Data)
		if err != nil {
			return err
		}
		return r.applier.ApplyExtraction(ctx, brand.ID, fields)
	case firecrawl.ExtractStatusFailed:
		return r.applier.FailExtraction(ctx, brand.ID, status.Error)
	default:
		// still processing, check again next tick
		return nil
	}
}
