package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brand-discovery/internal/db"
	"github.com/sells-group/brand-discovery/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	primary_domain TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	logo_url       TEXT NOT NULL DEFAULT '',
	slug           TEXT NOT NULL DEFAULT '',
	metadata       JSONB NOT NULL DEFAULT '{}',
	crawl_status   TEXT NOT NULL DEFAULT 'extracting',
	is_public      BOOLEAN NOT NULL DEFAULT true,
	owner_id       TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_brands_public_domain
	ON brands(primary_domain) WHERE is_public AND owner_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_brands_crawl_status ON brands(crawl_status, created_at);

CREATE TABLE IF NOT EXISTS url_mappings (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand_id            TEXT NOT NULL REFERENCES brands(id),
	domain              TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'processing',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	current_step        TEXT NOT NULL DEFAULT '',
	company_count       INTEGER NOT NULL DEFAULT 0,
	blog_count          INTEGER NOT NULL DEFAULT 0,
	docs_count          INTEGER NOT NULL DEFAULT 0,
	ecommerce_count     INTEGER NOT NULL DEFAULT 0,
	other_count         INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT,
	started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at        TIMESTAMPTZ,
	UNIQUE (brand_id, domain)
);

CREATE INDEX IF NOT EXISTS idx_url_mappings_brand_id ON url_mappings(brand_id);

CREATE TABLE IF NOT EXISTS brand_urls (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand_id      TEXT NOT NULL REFERENCES brands(id),
	mapping_id    TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT 'other',
	priority      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'discovered',
	r2_key        TEXT NOT NULL DEFAULT '',
	content_size  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (brand_id, url)
);

CREATE INDEX IF NOT EXISTS idx_brand_urls_brand_status ON brand_urls(brand_id, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const brandColumns = `id, primary_domain, name, description, logo_url, slug, metadata, crawl_status, is_public, owner_id, created_at, updated_at`

func scanBrand(row pgx.Row) (*model.Brand, error) {
	var b model.Brand
	var metadataJSON []byte
	err := row.Scan(
		&b.ID, &b.PrimaryDomain, &b.Name, &b.Description, &b.LogoURL, &b.Slug,
		&metadataJSON, &b.CrawlStatus, &b.IsPublic, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &b.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal brand metadata")
		}
	}
	return &b, nil
}

func (s *PostgresStore) CreateBrand(ctx context.Context, b *model.Brand) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}

	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal brand metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO brands (id, primary_domain, name, description, logo_url, slug, metadata, crawl_status, is_public, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.PrimaryDomain, b.Name, b.Description, b.LogoURL, b.Slug,
		metadataJSON, string(b.CrawlStatus), b.IsPublic, b.OwnerID, now, now,
	)
	return eris.Wrap(err, "postgres: insert brand")
}

func (s *PostgresStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	b, err := scanBrand(s.pool.QueryRow(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE id = $1`, id,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get brand %s", id)
	}
	return b, nil
}

func (s *PostgresStore) FindPublicBrand(ctx context.Context, domain string) (*model.Brand, error) {
	b, err := scanBrand(s.pool.QueryRow(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE primary_domain = $1 AND is_public AND owner_id IS NULL`,
		domain,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find public brand %s", domain)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBrandFields(ctx context.Context, b *model.Brand) error {
	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal brand metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE brands SET name = $1, description = $2, logo_url = $3, slug = $4, metadata = $5, updated_at = $6 WHERE id = $7`,
		b.Name, b.Description, b.LogoURL, b.Slug, metadataJSON, time.Now().UTC(), b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update brand %s", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("brand not found: %s", b.ID)
	}
	return nil
}

func (s *PostgresStore) AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, eris.Errorf("postgres: invalid crawl status transition %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE brands SET crawl_status = $1, updated_at = $2 WHERE id = $3 AND crawl_status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: advance brand status %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListBrandsByStatus(ctx context.Context, status model.CrawlStatus, limit int) ([]model.Brand, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE crawl_status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list brands by status")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		brands = append(brands, *b)
	}
	return brands, eris.Wrap(rows.Err(), "postgres: list brands by status")
}

const mappingColumns = `id, brand_id, domain, status, progress_percentage, current_step, company_count, blog_count, docs_count, ecommerce_count, other_count, error_message, started_at, completed_at`

func scanMapping(row pgx.Row) (*model.Mapping, error) {
	var m model.Mapping
	var errMsg *string
	err := row.Scan(
		&m.ID, &m.BrandID, &m.Domain, &m.Status, &m.Progress, &m.CurrentStep,
		&m.Counts.Company, &m.Counts.Blog, &m.Counts.Docs, &m.Counts.Ecommerce, &m.Counts.Other,
		&errMsg, &m.StartedAt, &m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		m.ErrorMessage = *errMsg
	}
	return &m, nil
}

// UpsertMapping starts or restarts the progress row for (brand_id, domain).
// A conflict resets the run: fresh status, progress, step, and started_at,
// cleared error and completion markers.
func (s *PostgresStore) UpsertMapping(ctx context.Context, m *model.Mapping) (*model.Mapping, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.StartedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO url_mappings (id, brand_id, domain, status, progress_percentage, current_step, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (brand_id, domain) DO UPDATE SET
			status = EXCLUDED.status,
			progress_percentage = EXCLUDED.progress_percentage,
			current_step = EXCLUDED.current_step,
			error_message = NULL,
			started_at = EXCLUDED.started_at,
			completed_at = NULL
		 RETURNING id`,
		m.ID, m.BrandID, m.Domain, string(m.Status), m.Progress, m.CurrentStep, now,
	).Scan(&m.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert mapping %s/%s", m.BrandID, m.Domain)
	}
	return m, nil
}

func (s *PostgresStore) GetMapping(ctx context.Context, brandID, domain string) (*model.Mapping, error) {
	m, err := scanMapping(s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM url_mappings WHERE brand_id = $1 AND domain = $2`,
		brandID, domain,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get mapping %s/%s", brandID, domain)
	}
	return m, nil
}

func (s *PostgresStore) UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE url_mappings SET status = $1, progress_percentage = GREATEST(progress_percentage, $2), current_step = $3 WHERE id = $4`,
		string(status), progress, step, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update mapping progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("mapping not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetMappingCounts(ctx context.Context, id string, counts model.CategoryCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE url_mappings SET company_count = $1, blog_count = $2, docs_count = $3, ecommerce_count = $4, other_count = $5 WHERE id = $6`,
		counts.Company, counts.Blog, counts.Docs, counts.Ecommerce, counts.Other, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set mapping counts %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("mapping not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteMapping(ctx context.Context, id, step string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE url_mappings SET status = $1, progress_percentage = 100, current_step = $2, completed_at = $3 WHERE id = $4`,
		string(model.MappingStatusCompleted), step, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete mapping %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("mapping not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailMapping(ctx context.Context, id, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE url_mappings SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4`,
		string(model.MappingStatusFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail mapping %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("mapping not found: %s", id)
	}
	return nil
}

var brandURLColumns = []string{
	"id", "brand_id", "mapping_id", "url", "title", "description",
	"category", "priority", "status", "created_at", "updated_at",
}

// UpsertBrandURLs bulk-upserts discovered links, unique on (brand_id, url).
// Existing rows keep their status and upload fields; only the descriptive
// columns refresh.
func (s *PostgresStore) UpsertBrandURLs(ctx context.Context, urls []model.BrandURL) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(urls))
	for _, u := range urls {
		id := u.ID
		if id == "" {
			id = uuid.New().String()
		}
		status := u.Status
		if status == "" {
			status = model.URLStatusDiscovered
		}
		rows = append(rows, []any{
			id, u.BrandID, u.MappingID, u.URL, u.Title, u.Description,
			string(u.Category), u.Priority, string(status), now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "brand_urls",
		Columns:      brandURLColumns,
		ConflictKeys: []string{"brand_id", "url"},
		UpdateCols:   []string{"mapping_id", "title", "description", "category", "priority", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert brand urls")
	}
	return n, nil
}

func (s *PostgresStore) GetBrandURL(ctx context.Context, brandID, url string) (*model.BrandURL, error) {
	var u model.BrandURL
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, mapping_id, url, title, description, category, priority, status, r2_key, content_size, error_message, created_at, updated_at
		 FROM brand_urls WHERE brand_id = $1 AND url = $2`,
		brandID, url,
	).Scan(
		&u.ID, &u.BrandID, &u.MappingID, &u.URL, &u.Title, &u.Description,
		&u.Category, &u.Priority, &u.Status, &u.R2Key, &u.ContentSize,
		&errMsg, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get brand url %s", url)
	}
	if errMsg != nil {
		u.ErrorMessage = *errMsg
	}
	return &u, nil
}

func (s *PostgresStore) MarkURLScraped(ctx context.Context, brandID, url string, contentSize int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brand_urls SET status = $1, content_size = $2, updated_at = $3 WHERE brand_id = $4 AND url = $5 AND status = ANY($6)`,
		string(model.URLStatusScraped), contentSize, time.Now().UTC(), brandID, url, allowedInto(model.URLStatusScraped),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark url scraped %s", url)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkURLUploading(ctx context.Context, brandID, url string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brand_urls SET status = $1, updated_at = $2 WHERE brand_id = $3 AND url = $4 AND status = ANY($5)`,
		string(model.URLStatusUploading), time.Now().UTC(), brandID, url, allowedInto(model.URLStatusUploading),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark url uploading %s", url)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkURLUploaded(ctx context.Context, brandID, url, r2Key string, size int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brand_urls SET status = $1, r2_key = $2, content_size = $3, updated_at = $4 WHERE brand_id = $5 AND url = $6 AND status = ANY($7)`,
		string(model.URLStatusUploaded), r2Key, size, time.Now().UTC(), brandID, url, allowedInto(model.URLStatusUploaded),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark url uploaded %s", url)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkURLFailed(ctx context.Context, brandID, url, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brand_urls SET status = $1, error_message = $2, updated_at = $3 WHERE brand_id = $4 AND url = $5 AND status = ANY($6)`,
		string(model.URLStatusFailed), errMsg, time.Now().UTC(), brandID, url, allowedInto(model.URLStatusFailed),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark url failed %s", url)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FailPendingURLs(ctx context.Context, brandID, errMsg string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brand_urls SET status = $1, error_message = $2, updated_at = $3 WHERE brand_id = $4 AND status = ANY($5)`,
		string(model.URLStatusFailed), errMsg, time.Now().UTC(), brandID,
		[]string{string(model.URLStatusDiscovered), string(model.URLStatusScraping)},
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: fail pending urls for brand %s", brandID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM brand_urls WHERE brand_id = $1 GROUP BY status`,
		brandID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count url statuses for brand %s", brandID)
	}
	defer rows.Close()

	counts := make(map[model.URLStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url status count")
		}
		counts[model.URLStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count url statuses")
}
